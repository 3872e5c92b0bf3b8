package apps

// Entry is one item of INSTALLED_APPS: either a dotted name to resolve or an
// already constructed app config.
type Entry struct {
	name string
	unit *AppConfig
}

// Name is an entry resolved with CreateFromEntry.
func Name(name string) Entry {
	return Entry{name: name}
}

// Unit is an entry holding a pre-built app config.
func Unit(cfg *AppConfig) Entry {
	return Entry{unit: cfg}
}

// Names converts a list of dotted names into entries.
func Names(names ...string) []Entry {
	entries := make([]Entry, 0, len(names))
	for _, n := range names {
		entries = append(entries, Name(n))
	}
	return entries
}

// IsUnit reports whether the entry holds a pre-built app config.
func (e Entry) IsUnit() bool {
	return e.unit != nil
}

// String returns the dotted name, or the app config's name for units.
func (e Entry) String() string {
	if e.unit != nil {
		return e.unit.Name
	}
	return e.name
}
