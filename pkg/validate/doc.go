/*
Package validate implements the naming, path, identifier, and env-var rules
enforced before the orchestrator takes any side effect.

Every function here is pure and side-effect free; all inputs are rejected
with a single typed *apperr.Error per rule so the HTTP layer can map
failures to 400-class responses without inspecting strings.
*/
package validate
