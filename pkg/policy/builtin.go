package policy

// GetBuiltinPolicies returns the built-in checks.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		urlsPolicy(),
		securityPolicy(),
	}
}

func urlsPolicy() Policy {
	return Policy{
		Name:        "urls",
		Description: "URL settings that are joined with paths must end with a slash",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package gojango.checks.urls

import rego.v1

deny contains violation if {
	some name in ["MEDIA_URL", "STATIC_URL"]
	value := input.settings[name]
	is_string(value)
	value != ""
	not endswith(value, "/")
	violation := {
		"id": "urls.E006",
		"message": sprintf("The %s setting must end with a slash.", [name]),
		"severity": "error",
	}
}
`,
	}
}

func securityPolicy() Policy {
	return Policy{
		Name:        "security",
		Description: "Deployment checks for settings that are unsafe in production",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package gojango.checks.security

import rego.v1

min_secret_key_length := 50

min_secret_key_unique_characters := 5

insecure_prefix := "gojango-insecure-"

deny contains violation if {
	input.deploy
	input.settings.DEBUG == true
	violation := {
		"id": "security.W018",
		"message": "You should not have DEBUG set to True in deployment.",
		"severity": "warning",
	}
}

deny contains violation if {
	input.deploy
	key := object.get(input.settings, "SECRET_KEY", "")
	weak_secret_key(key)
	violation := {
		"id": "security.W009",
		"message": sprintf("Your SECRET_KEY has less than %d characters, less than %d unique characters, or it's prefixed with '%s'.", [min_secret_key_length, min_secret_key_unique_characters, insecure_prefix]),
		"hint": "Generate a long and random value, otherwise many security-critical features will be vulnerable to attack.",
		"severity": "warning",
	}
}

deny contains violation if {
	input.deploy
	count(object.get(input.settings, "ALLOWED_HOSTS", [])) == 0
	violation := {
		"id": "security.W020",
		"message": "ALLOWED_HOSTS must not be empty in deployment.",
		"severity": "warning",
	}
}

weak_secret_key(key) if not is_string(key)

weak_secret_key(key) if {
	is_string(key)
	count(key) < min_secret_key_length
}

weak_secret_key(key) if {
	is_string(key)
	count({c | some c in split(key, "")}) < min_secret_key_unique_characters
}

weak_secret_key(key) if {
	is_string(key)
	startswith(key, insecure_prefix)
}
`,
	}
}
