package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		instanceNamingPolicy(),
		destroyProtectionPolicy(),
	}
}

// instanceNamingPolicy enforces instance naming conventions at create
// time. The parser enforces hostname validity; this adds the stricter
// house rules.
func instanceNamingPolicy() Policy {
	return Policy{
		Name:        "instance-naming",
		Description: "Enforces instance naming conventions (lowercase, alphanumeric, hyphens only)",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		Rego: `package vapordeck.policies.naming

import rego.v1

deny contains violation if {
	input.verb == "create"
	name := input.instance.name
	not regex.match("^[a-z0-9][a-z0-9-]*[a-z0-9]$", name)
	violation := {
		"message": sprintf("instance name %q must be lowercase alphanumeric with interior hyphens", [name]),
		"severity": "error",
	}
}

deny contains violation if {
	input.verb == "create"
	count(input.instance.name) > 40
	violation := {
		"message": sprintf("instance name %q exceeds 40 characters", [input.instance.name]),
		"severity": "error",
	}
}
`,
	}
}

// destroyProtectionPolicy blocks destroy on instances whose
// configurator input marks them protected.
func destroyProtectionPolicy() Policy {
	return Policy{
		Name:        "destroy-protection",
		Description: "Blocks destroy on instances marked protected in their configuration input",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"safety"},
		Rego: `package vapordeck.policies.protection

import rego.v1

deny contains violation if {
	input.verb == "destroy"
	input.instance.configuration.input.protected == true
	violation := {
		"message": sprintf("instance %q is protected; unset configuration.input.protected before destroying", [input.instance.name]),
		"severity": "critical",
	}
}
`,
	}
}
