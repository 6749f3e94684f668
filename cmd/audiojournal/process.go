package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/audiojournal/internal/improve"
	"github.com/MrWong99/audiojournal/internal/pipeline"
)

const (
	audioPrompt    = "Enter the path to your audio file: "
	languagePrompt = "Enter language (en/uk), or leave empty for auto-detection: "
)

var (
	processLang string
	processDate string
)

var processCmd = &cobra.Command{
	Use:   "process [audio-file]",
	Short: "Turn one recording into a journal entry",
	Long: `Transcribes the recording, rewrites it into a journal entry, links the
entities it mentions and indexes it. Without arguments the audio path and the
language are asked for interactively.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVarP(&processLang, "lang", "l", "", "transcription language (en/uk); empty means auto-detect")
	processCmd.Flags().StringVar(&processDate, "date", "", "entry date (YYYY-MM-DD); defaults to today")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	req := pipeline.Request{Date: processDate}
	if len(args) == 1 {
		req.AudioPath = args[0]
		req.Language = normaliseLanguage(processLang)
	} else {
		var err error
		req.AudioPath, req.Language, err = promptRequest(cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, closeApp, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp()

	res, err := a.Process(ctx, req)
	if err != nil && !errors.Is(err, pipeline.ErrPartial) {
		return err
	}
	printResult(cmd.OutOrStdout(), res)
	if err != nil {
		return err
	}
	return nil
}

// promptRequest asks for the audio path and the language. A language other
// than a known template code means auto-detection.
func promptRequest(in io.Reader, out io.Writer) (audioPath, lang string, err error) {
	r := bufio.NewReader(in)

	fmt.Fprint(out, audioPrompt)
	audioPath, err = readLine(r)
	if err != nil {
		return "", "", fmt.Errorf("read audio path: %w", err)
	}
	audioPath = strings.Trim(audioPath, `"'`)
	if audioPath == "" {
		return "", "", errors.New("no audio file given")
	}

	fmt.Fprint(out, languagePrompt)
	lang, err = readLine(r)
	if err != nil {
		return "", "", fmt.Errorf("read language: %w", err)
	}
	return audioPath, normaliseLanguage(lang), nil
}

// readLine returns the next trimmed line. A final line without a newline is
// returned as is; an empty input at EOF yields "".
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func normaliseLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	switch improve.Language(code) {
	case improve.English, improve.Ukrainian:
		return code
	}
	return ""
}

func printResult(w io.Writer, res *pipeline.Result) {
	if res == nil {
		return
	}
	fmt.Fprintf(w, "Entry:      %s (%s)\n", res.Date, res.EntryLocation)
	fmt.Fprintf(w, "Language:   %s (detected %q)\n", res.Language, res.DetectedLanguage)
	if len(res.Entities) > 0 {
		names := make([]string, 0, len(res.Entities))
		for _, e := range res.Entities {
			names = append(names, e.Name)
		}
		fmt.Fprintf(w, "Entities:   %s\n", strings.Join(names, ", "))
	}
	for _, l := range res.Lookalikes {
		fmt.Fprintf(w, "Lookalike:  %q sounds like %q\n", l.Name, l.Existing[0].Name)
	}
	if res.ArchivePath != "" {
		fmt.Fprintf(w, "Archived:   %s\n", res.ArchivePath)
	}
	if res.Partial && res.MentionErr != nil {
		fmt.Fprintf(w, "Unrecorded: %s\n", strings.Join(res.MentionErr.Slugs(), ", "))
	}
}
