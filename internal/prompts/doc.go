// Package prompts contains the prompt text aide sends to models and the
// fixed user-facing messages the orchestrator falls back to.
//
// Prompt text is Go code rather than config files because it is program logic:
// templates use fmt.Sprintf interpolation and can be validated by tests.
// User-facing configuration lives in config.yaml.
package prompts
