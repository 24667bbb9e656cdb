// Package engine executes executors, chains and multi-chains registered in
// a registry.
//
// Every invocation runs the same sequence on the caller's goroutine:
//
//  1. acquire an instance from the registry (a private clone for chains and
//     multi-chains)
//  2. resolve the settings document
//  3. bind the caller's inputs into the instance
//  4. execute the body
//  5. bind the instance's outputs back to the caller, unless the body
//     cancelled further execution
//  6. release the instance, on every exit path
//  7. record a timing sample, when timing is enabled and the call succeeded
//
// Settings are resolved before any input is bound, so a rejected document
// leaves the caller's ports untouched.
//
// Chains invoke their blocks through the same sequence, which is what makes
// direct and mutual recursion safe: each activation owns its own clone.
package engine
