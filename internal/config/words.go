package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Commands are the trigger word lists for the text command surface.
// Each entry is matched as a prefix against the inbound message.
type Commands struct {
	Generate     []string `yaml:"generate"`
	Edit         []string `yaml:"edit"`
	Reference    []string `yaml:"reference"`
	Merge        []string `yaml:"merge"`
	Reverse      []string `yaml:"reverse"`
	Analyze      []string `yaml:"analyze"`
	FollowUp     []string `yaml:"follow_up"`
	TranslateOn  []string `yaml:"translate_on"`
	TranslateOff []string `yaml:"translate_off"`
	EndSession   []string `yaml:"end_session"`
}

// Messages are the user-facing reply templates that operators most often
// want to reword.
type Messages struct {
	AwaitReferenceImage string `yaml:"await_reference_image"`
	AwaitMergeFirst     string `yaml:"await_merge_first"`
	AwaitMergeSecond    string `yaml:"await_merge_second"`
	AwaitReverseImage   string `yaml:"await_reverse_image"`
	AwaitAnalysisImage  string `yaml:"await_analysis_image"`
	WaitExpired         string `yaml:"wait_expired"`
	GenericFailure      string `yaml:"generic_failure"`
	RateLimited         string `yaml:"rate_limited"`
	SessionEnded        string `yaml:"session_ended"`
	NoRecentImage       string `yaml:"no_recent_image"`
	MissingAPIKey       string `yaml:"missing_api_key"`
}

type wordsFile struct {
	Commands Commands `yaml:"commands"`
	Messages Messages `yaml:"messages"`
}

func defaultCommands() Commands {
	return Commands{
		Generate:     []string{"draw ", "generate "},
		Edit:         []string{"edit "},
		Reference:    []string{"refedit ", "reference edit "},
		Merge:        []string{"merge"},
		Reverse:      []string{"reverse prompt", "describe image"},
		Analyze:      []string{"analyze", "ask image"},
		FollowUp:     []string{"follow up", "followup"},
		TranslateOn:  []string{"translate on"},
		TranslateOff: []string{"translate off"},
		EndSession:   []string{"end session", "done drawing"},
	}
}

func defaultMessages() Messages {
	return Messages{
		AwaitReferenceImage: "Send the image you want edited.",
		AwaitMergeFirst:     "Send the first of the two images to merge.",
		AwaitMergeSecond:    "Got it. Now send the second image.",
		AwaitReverseImage:   "Send the image you want a prompt for.",
		AwaitAnalysisImage:  "Send the image you want analyzed.",
		WaitExpired:         "That took too long, so I stopped waiting. Start the command again.",
		GenericFailure:      "Something went wrong on the image service. Please try again later.",
		RateLimited:         "Requests are coming in too fast. Wait a moment and try again.",
		SessionEnded:        "Session ended. Your drawing history has been cleared.",
		NoRecentImage:       "I couldn't find a recent image to work from. Send one first.",
		MissingAPIKey:       "The image service is not configured yet. Ask the operator to set an API key.",
	}
}

// loadWords merges an optional YAML file over the built-in defaults.
// path defaults to pixelbot.yaml in the working directory; a missing
// file is not an error.
func loadWords(path string) (Commands, Messages, error) {
	commands := defaultCommands()
	messages := defaultMessages()

	if path == "" {
		path = "pixelbot.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return commands, messages, nil
		}
		return commands, messages, fmt.Errorf("read config file: %w", err)
	}

	var f wordsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return commands, messages, fmt.Errorf("parse %s: %w", path, err)
	}

	mergeCommands(&commands, f.Commands)
	mergeMessages(&messages, f.Messages)
	return commands, messages, nil
}

func mergeCommands(dst *Commands, src Commands) {
	if len(src.Generate) > 0 {
		dst.Generate = src.Generate
	}
	if len(src.Edit) > 0 {
		dst.Edit = src.Edit
	}
	if len(src.Reference) > 0 {
		dst.Reference = src.Reference
	}
	if len(src.Merge) > 0 {
		dst.Merge = src.Merge
	}
	if len(src.Reverse) > 0 {
		dst.Reverse = src.Reverse
	}
	if len(src.Analyze) > 0 {
		dst.Analyze = src.Analyze
	}
	if len(src.FollowUp) > 0 {
		dst.FollowUp = src.FollowUp
	}
	if len(src.TranslateOn) > 0 {
		dst.TranslateOn = src.TranslateOn
	}
	if len(src.TranslateOff) > 0 {
		dst.TranslateOff = src.TranslateOff
	}
	if len(src.EndSession) > 0 {
		dst.EndSession = src.EndSession
	}
}

func mergeMessages(dst *Messages, src Messages) {
	if src.AwaitReferenceImage != "" {
		dst.AwaitReferenceImage = src.AwaitReferenceImage
	}
	if src.AwaitMergeFirst != "" {
		dst.AwaitMergeFirst = src.AwaitMergeFirst
	}
	if src.AwaitMergeSecond != "" {
		dst.AwaitMergeSecond = src.AwaitMergeSecond
	}
	if src.AwaitReverseImage != "" {
		dst.AwaitReverseImage = src.AwaitReverseImage
	}
	if src.AwaitAnalysisImage != "" {
		dst.AwaitAnalysisImage = src.AwaitAnalysisImage
	}
	if src.WaitExpired != "" {
		dst.WaitExpired = src.WaitExpired
	}
	if src.GenericFailure != "" {
		dst.GenericFailure = src.GenericFailure
	}
	if src.RateLimited != "" {
		dst.RateLimited = src.RateLimited
	}
	if src.SessionEnded != "" {
		dst.SessionEnded = src.SessionEnded
	}
	if src.NoRecentImage != "" {
		dst.NoRecentImage = src.NoRecentImage
	}
	if src.MissingAPIKey != "" {
		dst.MissingAPIKey = src.MissingAPIKey
	}
}
