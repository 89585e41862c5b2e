package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/triage-ai/portfolio-guard/internal/config"
	"github.com/triage-ai/portfolio-guard/internal/engine"
	"go.uber.org/zap"
)

var (
	classifyProfile string
	classifyRules   string
)

var classifyCmd = &cobra.Command{
	Use:   "classify [text]",
	Short: "Run the guardrail classifier on text and print the verdict",
	Long: `classify runs the same rules the server applies to user messages and
prints the verdict as JSON. Text is read from the arguments, or from stdin
when no arguments are given.`,
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&classifyProfile, "profile", engine.ProfileChat.Name, "classification profile (chat or fit_assessment)")
	classifyCmd.Flags().StringVar(&classifyRules, "rules", "", "optional rules file overriding the built-in rules")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	var profile engine.Profile
	switch classifyProfile {
	case engine.ProfileChat.Name:
		profile = engine.ProfileChat
	case engine.ProfileFitAssessment.Name:
		profile = engine.ProfileFitAssessment
	default:
		return fmt.Errorf("unknown profile %q", classifyProfile)
	}

	rules, err := config.LoadRules(classifyRules)
	if err != nil {
		return err
	}

	text := strings.Join(args, " ")
	if len(args) == 0 {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = strings.TrimRight(string(raw), "\r\n")
	}

	classifier := engine.NewClassifier(rules.Rules(), zap.NewNop())
	verdict := classifier.Classify(text, rules.Profile(profile))

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(verdict)
}
