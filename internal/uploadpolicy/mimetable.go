package uploadpolicy

// defaultMediaTypes maps a lowercase extension to the media types its content may sniff as.
// Text formats the sniffer cannot tell apart from plain text also accept text/plain.
var defaultMediaTypes = map[string][]string{
	// text
	"txt":  {"text/plain"},
	"css":  {"text/css", "text/plain"},
	"js":   {"text/javascript", "application/javascript", "text/plain"},
	"json": {"application/json"},
	"xml":  {"text/xml", "application/xml"},
	"csv":  {"text/csv", "text/plain"},
	"rtf":  {"application/rtf", "text/rtf"},

	// images
	"jpg":  {"image/jpeg"},
	"jpeg": {"image/jpeg"},
	"png":  {"image/png"},
	"gif":  {"image/gif"},
	"svg":  {"image/svg+xml"},
	"webp": {"image/webp"},
	"tiff": {"image/tiff"},
	"bmp":  {"image/bmp"},

	// documents
	"pdf":  {"application/pdf"},
	"doc":  {"application/msword"},
	"docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	"xls":  {"application/vnd.ms-excel"},
	"xlsx": {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	"ppt":  {"application/vnd.ms-powerpoint"},
	"pptx": {
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		"application/vnd.ms-powerpoint.presentation.macroenabled.12",
	},

	// audio
	"mp3":  {"audio/mpeg"},
	"wav":  {"audio/wav", "audio/x-wav"},
	"ogg":  {"audio/ogg"},
	"midi": {"audio/midi", "audio/x-midi"},
	"aac":  {"audio/aac"},
	"flac": {"audio/flac"},
	"m4a":  {"audio/x-m4a", "audio/mp4"},

	// video
	"mp4":  {"video/mp4"},
	"mpeg": {"video/mpeg"},
	"ogv":  {"video/ogg"},
	"webm": {"video/webm"},
	"mov":  {"video/quicktime"},
	"avi":  {"video/x-msvideo"},
	"wmv":  {"video/x-ms-wmv", "video/x-ms-asf"},

	// archives
	"zip": {"application/zip", "application/x-zip-compressed"},
	"rar": {"application/x-rar-compressed", "application/vnd.rar"},
	"tar": {"application/x-tar"},
	"gz":  {"application/gzip", "application/x-gzip"},

	// 3d models
	"glb":  {"model/gltf-binary"},
	"gltf": {"model/gltf+json", "application/json"},
	"obj":  {"text/plain", "application/octet-stream"},

	// fonts
	"ttf":   {"font/ttf"},
	"otf":   {"font/otf"},
	"woff":  {"font/woff"},
	"woff2": {"font/woff2"},
}
