package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"path"
	"skill-chat/errors"
	"strings"

	"github.com/samber/lo"
)

//go:embed censored/*.txt
var censoredFS embed.FS

// Dictionary is the merged word list of every language file.
type Dictionary struct {
	Words     []string
	Languages []string
}

// LoadEmbedded reads the word lists shipped with the binary.
func LoadEmbedded() (Dictionary, error) {
	return Load(censoredFS, "censored")
}

// Load parses every .txt file of dir, one word per line. The file name
// without extension is the language.
func Load(fsys fs.FS, dir string) (Dictionary, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return Dictionary{}, err
	}
	var dictionary Dictionary
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".txt" {
			continue
		}
		dictionary.Languages = append(dictionary.Languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return Dictionary{}, err
		}
		// Scanner copes with \r\n line endings
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				dictionary.Words = append(dictionary.Words, line)
			}
		}
		if err = scanner.Err(); err != nil {
			return Dictionary{}, err
		}
	}
	dictionary.Words = lo.Uniq(dictionary.Words)
	if len(dictionary.Words) == 0 {
		return Dictionary{}, errors.ErrEmptyWords
	}
	return dictionary, nil
}
