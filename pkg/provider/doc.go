// Package provider defines the contract between the lifecycle engine
// and cloud backends, and the registry that maps provider tags to
// implementations.
//
// A backend contributes two collaborators: a Provisioner that manages
// the cloud-side resources of an instance, and a Runner that controls
// the machine once it exists. Backends are selected purely by the tag
// recorded in the instance state; the engine never type-switches on a
// concrete implementation.
package provider
