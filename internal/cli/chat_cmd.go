// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat_cmd.go - chat, ask and repl command handlers.
//
// Handles the interactive surfaces:
//
//	tutordeck chat BOT_ID [CONV_ID]   Full-screen Bubble Tea UI
//	tutordeck ask BOT_ID "question"   One-shot streamed answer on stdout
//	tutordeck repl BOT_ID [CONV_ID]   Line-based loop with input history
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/peterh/liner"

	"github.com/tutordeck/tutordeck-tui/internal/api"
	"github.com/tutordeck/tutordeck-tui/internal/chat"
	"github.com/tutordeck/tutordeck-tui/internal/config"
	"github.com/tutordeck/tutordeck-tui/internal/history"
	"github.com/tutordeck/tutordeck-tui/internal/model"
	uichat "github.com/tutordeck/tutordeck-tui/internal/ui/chat"
	"github.com/tutordeck/tutordeck-tui/internal/ui/styles"
)

// =============================================================================
// CHAT (FULL-SCREEN)
// =============================================================================

// HandleChat runs the full-screen chat UI for one conversation.
func HandleChat(args Args) int {
	if args.BotID == "" {
		printError("tutordeck: chat needs a bot ID (tutordeck chat BOT_ID)")
		return 2
	}
	SetupLogging()

	env, err := LoadEnv()
	if err != nil {
		printError("tutordeck: %v", err)
		return 1
	}

	store, err := env.OpenHistory()
	if err != nil {
		// History is a cache; a broken cache should not block chatting.
		log.Printf("history disabled: %v", err)
		store = nil
	}
	if store != nil {
		defer store.Close()
	}

	sess := chat.NewSession(env.Client, nil)
	if err := prepareSession(sess, env, args); err != nil {
		printError("tutordeck: %v", err)
		return 1
	}

	onStreamEnd := func() {
		persistTranscript(store, sess)
	}

	theme := styles.New(env.Config.UI.Theme)
	if err := uichat.Run(sess, theme, env.Config.UI, onStreamEnd); err != nil {
		printError("tutordeck: chat: %v", err)
		return 1
	}

	// Persist whatever the session holds on exit, including a transcript
	// frozen mid-stream by quitting.
	persistTranscript(store, sess)
	return 0
}

// prepareSession loads an existing conversation or begins a fresh one.
func prepareSession(sess *chat.Session, env *Env, args Args) error {
	if args.ConversationID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
		defer cancel()
		if err := sess.Load(ctx, args.ConversationID); err != nil {
			return fmt.Errorf("load conversation %s: %w", args.ConversationID, err)
		}
		return nil
	}
	return sess.Begin(model.Conversation{
		ID:      uuid.NewString(),
		BotID:   args.BotID,
		BotName: "Tutor",
	})
}

func persistTranscript(store *history.Store, sess *chat.Session) {
	if store == nil || !sess.Loaded() {
		return
	}
	transcript := sess.Transcript()
	if transcript == nil || transcript.IsEmpty() {
		return
	}
	if err := store.Put(context.Background(), transcript); err != nil {
		log.Printf("persist transcript: %v", err)
	}
}

// =============================================================================
// ASK (ONE-SHOT)
// =============================================================================

// HandleAsk sends a single question and streams the answer to stdout.
func HandleAsk(args Args) int {
	if args.BotID == "" || args.Query == "" {
		printError("tutordeck: ask needs a bot ID and a question")
		return 2
	}

	env, err := LoadEnv()
	if err != nil {
		printError("tutordeck: %v", err)
		return 1
	}

	conversationID := uuid.NewString()
	user := model.NewUserMessage(conversationID, args.Query)
	placeholder := model.NewBotPlaceholder(conversationID)

	fragments, err := env.Client.Generate(context.Background(), conversationID, api.GenerateRequest{
		UserMessage: user.Content,
		BotMessage:  placeholder.ID,
	})
	if err != nil {
		printError("tutordeck: %v", err)
		return 1
	}

	for frag := range fragments {
		if frag.Err != nil {
			fmt.Println()
			printError("tutordeck: %v", frag.Err)
			return 1
		}
		fmt.Print(frag.Text)
	}
	fmt.Println()
	return 0
}

// =============================================================================
// REPL (LINE-BASED)
// =============================================================================

// replInput wraps liner with persistent input history.
// USABILITY: arrow keys navigate history, Ctrl+C aborts the prompt.
type replInput struct {
	line        *liner.State
	historyFile string
}

func newReplInput() *replInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	in := &replInput{
		line:        line,
		historyFile: filepath.Join(dir, "repl_history"),
	}
	if f, err := os.Open(in.historyFile); err == nil {
		in.line.ReadHistory(f)
		f.Close()
	}
	return in
}

func (in *replInput) Read(prompt string) (string, error) {
	input, err := in.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		in.line.AppendHistory(input)
	}
	return input, nil
}

func (in *replInput) Close() {
	if _, err := config.EnsureConfigDir(); err == nil {
		if f, err := os.OpenFile(in.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			in.line.WriteHistory(f)
			f.Close()
		}
	}
	in.line.Close()
}

// replNotifier prints streamed bot output as it lands in the transcript.
// TranscriptUpdated fires on the session's cycle goroutine; the REPL loop
// blocks on done between sends, so printing here does not interleave with
// prompt output.
type replNotifier struct {
	sess    *chat.Session
	printed int // runes of the in-flight answer already written
	done    chan error
}

func (n *replNotifier) TranscriptUpdated() {
	last := n.sess.Transcript().LastMessage()
	if last == nil || last.Role != model.RoleBot {
		return
	}
	content := []rune(last.DisplayContent())
	if len(content) > n.printed {
		fmt.Print(string(content[n.printed:]))
		n.printed = len(content)
	}
}

func (n *replNotifier) StreamEnded(messageID string, err error) {
	n.done <- err
}

func (n *replNotifier) Toast(message string) {
	fmt.Println()
	fmt.Println(infoStyle.Render(message))
}

// HandleRepl runs a line-based chat loop without the full-screen UI.
func HandleRepl(args Args) int {
	if args.BotID == "" {
		printError("tutordeck: repl needs a bot ID (tutordeck repl BOT_ID)")
		return 2
	}
	SetupLogging()

	env, err := LoadEnv()
	if err != nil {
		printError("tutordeck: %v", err)
		return 1
	}

	store, err := env.OpenHistory()
	if err != nil {
		log.Printf("history disabled: %v", err)
		store = nil
	}
	if store != nil {
		defer store.Close()
	}

	sess := chat.NewSession(env.Client, nil)
	if err := prepareSession(sess, env, args); err != nil {
		printError("tutordeck: %v", err)
		return 1
	}

	notifier := &replNotifier{sess: sess, done: make(chan error, 1)}
	sess.SetNotifier(notifier)

	input := newReplInput()
	defer input.Close()

	fmt.Println(infoStyle.Render("Chatting with " + sess.Conversation().BotName + ". /quit to exit."))

	for {
		line, err := input.Read("you> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				break
			}
			printError("tutordeck: read input: %v", err)
			break
		}

		switch strings.TrimSpace(line) {
		case "/quit", "/q", "/exit":
			persistTranscript(store, sess)
			return 0
		case "":
			continue
		}

		notifier.printed = 0
		if err := sess.Send(context.Background(), line); err != nil {
			if errors.Is(err, chat.ErrEmptyMessage) {
				continue
			}
			printError("tutordeck: %v", err)
			continue
		}

		// Block until the cycle settles; fragments print from the notifier.
		<-notifier.done
		fmt.Println()
		persistTranscript(store, sess)
	}

	persistTranscript(store, sess)
	return 0
}
