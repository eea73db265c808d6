package audiofile

import (
	"fmt"

	"github.com/bogem/id3v2"
)

// Tags is the descriptive metadata of an audio file.
type Tags struct {
	Title  string
	Artist string
}

// ReadTags reads the ID3v2 title and artist. A file without a tag yields
// empty Tags and no error.
func ReadTags(path string) (Tags, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true, ParseFrames: []string{"Title", "Artist"}})
	if err != nil {
		return Tags{}, fmt.Errorf("audiofile: read tags %s: %w", path, err)
	}
	defer tag.Close()

	return Tags{Title: tag.Title(), Artist: tag.Artist()}, nil
}
