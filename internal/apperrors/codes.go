package apperrors

var (
	// Friendship
	ErrSelfTarget              = Validation("SELF_TARGET", "cannot send a friend request to yourself")
	ErrUserNotFound            = NotFound("USER_NOT_FOUND", "user not found")
	ErrAlreadyFriends          = Conflict("ALREADY_FRIENDS", "already friends")
	ErrRequestPending          = Conflict("REQUEST_PENDING", "friend request already pending")
	ErrFriendLimitReached      = Quota("FRIEND_LIMIT_REACHED", "friend limit reached")
	ErrTargetFriendLimit       = Quota("TARGET_FRIEND_LIMIT_REACHED", "target user has reached the friend limit")
	ErrFriendshipNotFound      = NotFound("FRIENDSHIP_NOT_FOUND", "friendship not found")
	ErrNotAParty               = Forbidden("NOT_A_PARTY", "not a party to this friendship")
	ErrRequesterCannotRespond  = Forbidden("REQUESTER_CANNOT_RESPOND", "cannot respond to your own friend request")
	ErrNotRequester            = Forbidden("NOT_REQUESTER", "can only cancel requests you sent")
	ErrFriendshipInvalidState  = Conflict("INVALID_STATE", "friend request is not pending")
	ErrMissingFriendshipTarget = Validation("MISSING_TARGET", "username or userId is required")

	// Posts and comments
	ErrPostNotFound       = NotFound("POST_NOT_FOUND", "post not found")
	ErrCommentNotFound    = NotFound("COMMENT_NOT_FOUND", "comment not found")
	ErrNotPostOwner       = Forbidden("NOT_POST_OWNER", "only the post owner can do this")
	ErrNotCommentDeleter  = Forbidden("NOT_COMMENT_AUTHOR_OR_POST_OWNER", "only the comment author or the post owner can delete a comment")
	ErrCaptionTooLong     = Validation("CAPTION_TOO_LONG", "caption is too long")
	ErrImageRequired      = Validation("IMAGE_REQUIRED", "an image is required")
	ErrImageTooLarge      = Validation("IMAGE_TOO_LARGE", "image file is too large")
	ErrEmptyComment       = Validation("EMPTY_COMMENT", "comment text is required")
	ErrPostLimitReached   = Quota("POST_LIMIT_REACHED", "post limit reached")
	ErrPostRateLimited    = RateLimited("POST_RATE_LIMITED", "you can only post once per cooldown window")
	ErrInvalidCursor      = Validation("INVALID_CURSOR", "invalid feed cursor")
	ErrInvalidProfileData = Validation("INVALID_PROFILE", "invalid profile data")

	// Identity
	ErrUsernameTaken       = Conflict("USERNAME_TAKEN", "username or email already exists")
	ErrInvalidCredentials  = Forbidden("INVALID_CREDENTIALS", "invalid username or password")
	ErrInvalidRegistration = Validation("INVALID_REGISTRATION", "username and password are required")
)
