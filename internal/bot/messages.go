package bot

// =============================================================================
// General messages
// =============================================================================

const (
	MsgOk            = `Ok!`
	MsgUnexpectedErr = `Unexpected error: %s`
	MsgVersionInfo   = "Version: %s\nBuilt: %s"
	MsgIdlePrompt    = "Send /start to try on a new hairstyle."
	MsgErrorState    = "Something went wrong: %s\n\nSend /reset to start over."
	MsgResetDone     = "Done, everything cleared. Send /start to begin again."
)

// =============================================================================
// Capture flow messages
// =============================================================================

const (
	MsgCaptureStart = `
		Let's find you a new hairstyle! I need three photos of your face:
		front, left and right.

		Send the *front* photo first.`
	MsgCapturePhotoAdded    = "Photo %d of 3 added. Now send the *%s* photo."
	MsgCapturePhotoPrompt   = "Send the *%s* photo."
	MsgCaptureComplete      = "All three photos captured."
	MsgCaptureNotExpecting  = "I'm not collecting photos right now. Send /start to begin."
	MsgCaptureBufferFull    = "I already have all three photos. Use the buttons above, or /reset to start over."
	MsgCaptureDownloadError = "I couldn't download your photo: %s\n\nSend /reset to start over."
	MsgPreviewPrompt        = "Happy with the photos? Analyze them, or retake all three."
)

// =============================================================================
// Analysis and selection messages
// =============================================================================

const (
	MsgAnalyzing        = "Analyzing your face shape, this takes a few seconds..."
	MsgAnalysisFailed   = "Face analysis failed: %s\n\nSend /reset to start over."
	MsgFaceShapeIs      = "Your face shape is *%s*. Here are five hairstyles that would suit you:"
	MsgSelectionPrompt  = "Pick up to %d styles to try on, then press Generate."
	MsgSelectionLimit   = "You can pick at most %d styles. Unselect one first."
	MsgSelectionEmpty   = "Pick at least one style first."
	MsgNotInSelection   = "There's nothing to select right now. Send /start to begin."
	MsgGenerating       = "Generating %s, this can take up to half a minute..."
	MsgGenerationFailed = "Image generation failed: %s\n\nSend /reset to start over."
	MsgResultsCaption   = "%s"
	MsgResultsDone      = "Here you go! Send /reset when you want to try again."
)

// =============================================================================
// History messages
// =============================================================================

const (
	MsgHistoryEmpty        = "No saved looks yet."
	MsgHistoryHeader       = "Your recent looks:"
	MsgHistoryEntry        = "%d. *%s* (%s face) - %s"
	MsgHistoryNotAvailable = "History is not available."
)

// =============================================================================
// Admin command messages
// =============================================================================

const (
	MsgAdminUsage           = "Usage:\n`/admin users add <user_id>`\n`/admin users remove <user_id>`\n`/admin users list`"
	MsgAdminUserAddUsage    = "Usage: `/admin users add <user_id>`"
	MsgAdminUserRemoveUsage = "Usage: `/admin users remove <user_id>`"
	MsgAdminUserInvalidID   = "Invalid user ID. Provide a number."
	MsgAdminUserAdded       = "User `%d` added."
	MsgAdminUserRemoved     = "User `%d` removed."
	MsgAdminUserListEmpty   = "No allowed users."
	MsgAdminOnly            = "Only the admin can do that."
)
