package printer

// ESC/P control bytes understood by the dot-matrix models we drive.
const (
	esc      = 0x1B
	formFeed = 0x0C
)

var (
	cmdInit    = []byte{esc, '@'}
	cmdBoldOn  = []byte{esc, 'E'}
	cmdBoldOff = []byte{esc, 'F'}
)

// EncodeJob frames text as one page: initialize, optional bold, UTF-8
// text, form feed.
func EncodeJob(text string, bold bool) []byte {
	out := make([]byte, 0, len(text)+8)
	out = append(out, cmdInit...)
	if bold {
		out = append(out, cmdBoldOn...)
	}
	out = append(out, text...)
	if bold {
		out = append(out, cmdBoldOff...)
	}
	return append(out, formFeed)
}
