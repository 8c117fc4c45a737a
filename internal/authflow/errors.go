package authflow

// Error codes surfaced to the error page via the error query parameter.
// This is a closed set; provider error codes pass through verbatim.
const (
	CodeAuthInitFailed    = "auth_init_failed"
	CodeNoCode            = "no_code"
	CodeStateMismatch     = "state_mismatch"
	CodeNoClassroomAccess = "no_classroom_access"
	CodeUserInfoFailed    = "user_info_failed"
	CodeCallbackFailed    = "callback_failed"
)

// Human-readable messages paired with the codes above.
const (
	messageAuthInitFailed    = "Could not start Google sign-in. Please try again."
	messageNoCode            = "Authorization code not found."
	messageStateMismatch     = "Security check failed. Please try again."
	messageNoClassroomAccess = "You do not have access to Google Classroom. Contact your administrator."
	messageUserInfoFailed    = "Could not verify your account information."
	messageCallbackFailed    = "Something went wrong during sign-in."
	messageOAuthError        = "Google reported an error during sign-in."
)
