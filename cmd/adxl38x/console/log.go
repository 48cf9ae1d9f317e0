package console

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

const PictoCheck = "✅"
const PictoCross = "❌"
const PictoReset = "🔄"
const PictoInbox = "📥"
const PictoGear = "⚙"

var writer io.Writer
var errWriter io.Writer

func init() {
	writer = os.Stdout
	errWriter = os.Stderr
}

func Writer() io.Writer {
	return writer
}

func fmtHex(b byte) string {
	return fmt.Sprintf("%#02x", b)
}

func Warnf(msg string, args ...interface{}) {
	_, _ = fmt.Fprintf(errWriter, "%s: %s\n", Yellow("WARN"), fmt.Sprintf(msg, args...))
}

func PInfof(picto, msg string, args ...interface{}) {
	_, _ = fmt.Fprintf(writer, "%s %s\n", picto, fmt.Sprintf(msg, args...))
}

func Printf(msg string, args ...interface{}) {
	_, _ = fmt.Fprintf(writer, msg, args...)
}

// Dump prints data as a canonical hex dump.
func Dump(data []byte) {
	_, _ = fmt.Fprint(writer, hex.Dump(data))
}
