package azure

import (
	"encoding/binary"
	"strings"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/audio"
)

// Push streams default to 16-bit little-endian PCM, mono, 16KHz.
func pcmBytes(clip *audio.Clip) []byte {
	data := make([]byte, len(clip.Samples)*2)
	for i, s := range clip.Samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}

var locales = map[string]string{
	"en": "en-US",
	"es": "es-ES",
	"pt": "pt-BR",
	"fr": "fr-FR",
	"de": "de-DE",
	"it": "it-IT",
}

// Locale maps a language code to the locale the speech service expects.
func Locale(lang string) string {
	if lang == "" {
		return LocaleDefault
	}

	if i := strings.IndexAny(lang, "_-"); i > 0 && i < len(lang)-1 {
		return strings.ToLower(lang[:i]) + "-" + strings.ToUpper(lang[i+1:])
	}

	if l, ok := locales[strings.ToLower(lang)]; ok {
		return l
	}

	return strings.ToLower(lang)
}
