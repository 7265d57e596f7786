// Package policy provides Open Policy Agent (OPA) guardrails for
// lifecycle operations.
//
// Policies are written in Rego and evaluated before a verb reaches the
// provider. The input document carries the verb, the instance's state
// record and an evaluation context; any deny result with severity
// "error" or "critical" blocks the operation.
//
// Built-in policies cover instance naming and destroy protection. Site
// policies are loaded from .rego files:
//
//	package vapordeck.policies.region
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.verb == "create"
//	    input.instance.provision.input.region != "fr-par"
//	    violation := {
//	        "message": "instances must be provisioned in fr-par",
//	        "severity": "error",
//	    }
//	}
package policy
