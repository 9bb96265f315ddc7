package document

// Decoders for encoded paint data.
import (
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)
