package api

const (
	CategoryDatabase = ErrorCategory("Database")
	CategoryUser     = ErrorCategory("User") // bad input or a claim in the wrong state
	CategoryNotFound = ErrorCategory("NotFound")
	CategoryInternal = ErrorCategory("Internal")
)

const (
	// General
	ErrorGenericInternalServer = ErrorKey("ErrorGenericInternalServer")
	ErrorInvalidEntryID        = ErrorKey("ErrorInvalidEntryID")
	ErrorQueryFailure          = ErrorKey("ErrorQueryFailure")

	// Claims
	ErrorClaimNotFound       = ErrorKey("ErrorClaimNotFound")
	ErrorClaimsNotFound      = ErrorKey("ErrorClaimsNotFound")
	ErrorClaimStatusMismatch = ErrorKey("ErrorClaimStatusMismatch")
	ErrorClaimCorrupt        = ErrorKey("ErrorClaimCorrupt")

	// Documents
	ErrorPDFGeneration  = ErrorKey("ErrorPDFGeneration")
	ErrorPDFCompression = ErrorKey("ErrorPDFCompression")
	ErrorCSVGeneration  = ErrorKey("ErrorCSVGeneration")
)
