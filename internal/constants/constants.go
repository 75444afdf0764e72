package constants

// Date layouts used in generated documents.
const (
	// DisplayDateFormat matches the Finnish short date, e.g. 5.3.2025.
	DisplayDateFormat = "2.1.2006"
	// FilenameDateFormat is DisplayDateFormat with dashes, safe in filenames.
	FilenameDateFormat = "2-1-2006"
	ISODateFormat      = "2006-01-02"
)

// Content types of export responses.
const (
	ContentTypePDF = "application/pdf"
	ContentTypeCSV = "text/csv"
	ContentTypeZIP = "application/zip"
)
