package prompts

// EmptyResponseNudge is injected when the model returns no content. It
// gives the model one more chance to produce a user-visible response.
const EmptyResponseNudge = "You did not provide a response to the user. Please respond now."

// EmptyResponseFallback is returned when the model fails to produce
// content even after being nudged.
const EmptyResponseFallback = "I processed your request but wasn't able to compose a response. Please try again."

// IterationLimitResponse is returned when a turn uses up its model
// calls without reaching an answer. The verb is the iteration count.
const IterationLimitResponse = "I wasn't able to finish that within %d steps, so I stopped. " +
	"Some actions may have completed; try asking again with a narrower request."

// FailureNotice is sent to the user when a turn fails on a backend
// error or times out.
const FailureNotice = "Sorry, something went wrong while working on that."
