package config

import (
	"fmt"
	"os"
)

// Credentials hold the secrets handed to the transcription backends. They are
// read once and never written back to the environment or to disk.
type Credentials struct {
	AssemblyAIKey     string
	HFToken           string
	AzureSpeechKey    string
	AzureSpeechRegion string
}

func CredentialsFromEnv() Credentials {
	return Credentials{
		AssemblyAIKey:     os.Getenv("ASSEMBLYAI_API_KEY"),
		HFToken:           os.Getenv("HF_API_KEY"),
		AzureSpeechKey:    os.Getenv("AZURE_SPEECH_KEY"),
		AzureSpeechRegion: os.Getenv("AZURE_SPEECH_REGION"),
	}
}

// IsValidFor checks that the secrets needed by api are present.
func (c Credentials) IsValidFor(api TranscribeAPI) error {
	if api == TranscribeAPIAssemblyAI {
		if c.AssemblyAIKey == "" {
			return fmt.Errorf("ASSEMBLYAI_API_KEY should be set")
		}
		return nil
	}

	if c.HFToken == "" {
		return fmt.Errorf("HF_API_KEY should be set")
	}

	if api == TranscribeAPIAzure && (c.AzureSpeechKey == "" || c.AzureSpeechRegion == "") {
		return fmt.Errorf("AZURE_SPEECH_KEY and AZURE_SPEECH_REGION should be set")
	}

	return nil
}

// String keeps secrets out of logs.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{AssemblyAIKey:%s HFToken:%s AzureSpeechKey:%s AzureSpeechRegion:%s}",
		redact(c.AssemblyAIKey), redact(c.HFToken), redact(c.AzureSpeechKey), c.AzureSpeechRegion)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
