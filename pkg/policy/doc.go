// Package policy evaluates system checks written in Rego with Open Policy
// Agent.
//
// Each policy is a Rego module whose package defines a "deny" set. Every
// member of the set is an object with an "id", a "message", and optionally
// a "hint" and a "severity" ("error" or "warning"):
//
//	package gojango.checks.custom
//
//	import rego.v1
//
//	deny contains violation if {
//		input.settings.DEBUG
//		violation := {"id": "custom.W001", "message": "DEBUG is on.", "severity": "warning"}
//	}
//
// Policies see the Input document: the loaded settings, the installed app
// names and whether deployment checks were requested.
//
// # Built-in Policies
//
//   - urls: MEDIA_URL and STATIC_URL must end with a slash (urls.E006).
//   - security: deployment checks for DEBUG (security.W018), a weak
//     SECRET_KEY (security.W009) and an empty ALLOWED_HOSTS (security.W020).
//     They only report when Input.Deploy is set.
//
// Extra policies are loaded from .rego files with Engine.LoadPolicies.
package policy
