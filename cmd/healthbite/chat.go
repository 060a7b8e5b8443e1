package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"Healthbite/internal/conversation"
	"Healthbite/internal/geminiservice"
	"Healthbite/internal/intake"
	"Healthbite/internal/presentation"
	"github.com/spf13/cobra"
)

var plain bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run the intake form and conversation in the terminal",
	Long: `Asks the intake questions, then chats with the assistants until the meal
plan is ready. Type /reset to start over or /quit to leave.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&plain, "plain", false, "Print markdown without terminal styling")
}

func runChat(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateChat(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := geminiservice.NewProvider(ctx, &logger, cfg.LLM)
	if err != nil {
		return fmt.Errorf("could not initialize completion provider: %w", err)
	}
	term, err := presentation.NewTerminal(plain)
	if err != nil {
		return err
	}

	driver := conversation.NewDriver(provider, cfg.Conversation, conversation.WithLogger(logger))
	return newChatSession(os.Stdin, os.Stdout, driver, term).run(ctx)
}

const (
	cmdQuit  = "/quit"
	cmdReset = "/reset"
)

var errQuit = errors.New("quit")

// chatSession drives one terminal conversation.
type chatSession struct {
	in     *bufio.Scanner
	out    io.Writer
	driver *conversation.Driver
	term   *presentation.Terminal
}

func newChatSession(in io.Reader, out io.Writer, driver *conversation.Driver, term *presentation.Terminal) *chatSession {
	return &chatSession{in: bufio.NewScanner(in), out: out, driver: driver, term: term}
}

func (s *chatSession) run(ctx context.Context) error {
	for {
		err := s.converse(ctx)
		switch {
		case errors.Is(err, errQuit), errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
			fmt.Fprintln(s.out, "Goodbye!")
			return nil
		case err != nil:
			return err
		}

		answer, err := s.ask("Start a new plan? (y/N)")
		if err != nil || !strings.EqualFold(answer, "y") {
			fmt.Fprintln(s.out, "Goodbye!")
			return nil
		}
		s.driver.Reset()
	}
}

// converse runs intake and chat until the meal plan is shown.
func (s *chatSession) converse(ctx context.Context) error {
	// 1. Intake form
	profile, err := s.intake()
	if err != nil {
		return err
	}

	// 2. Open the conversation, retrying provider failures on request
	snap, err := s.retry(ctx, func() (conversation.Snapshot, error) {
		return s.driver.Start(ctx, profile)
	})
	if err != nil {
		return err
	}
	s.printReply(snap)

	// 3. Chat until the engagement assistant finishes
	for !snap.Finished() {
		line, err := s.ask("You")
		if err != nil {
			return err
		}
		switch strings.ToLower(line) {
		case "":
			continue
		case cmdReset:
			s.driver.Reset()
			fmt.Fprintln(s.out, "Starting over.")
			return s.converse(ctx)
		}

		snap, err = s.retry(ctx, func() (conversation.Snapshot, error) {
			return s.driver.Send(ctx, line)
		})
		if err != nil {
			return err
		}
		s.printReply(snap)
	}

	// 4. Meal plan, table and chart
	plan, data, _ := s.driver.MealPlan()
	view, err := presentation.NewMealPlanView(plan, data)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, s.term.MealPlan(view))
	return nil
}

// retry repeats call while the provider fails and the user asks to retry.
func (s *chatSession) retry(ctx context.Context, call func() (conversation.Snapshot, error)) (conversation.Snapshot, error) {
	for {
		snap, err := call()
		var perr *conversation.ProviderError
		if !errors.As(err, &perr) {
			return snap, err
		}
		if ctx.Err() != nil {
			return snap, ctx.Err()
		}
		fmt.Fprintf(s.out, "The assistant is unavailable: %v\n", perr.Err)
		answer, aerr := s.ask("Retry? (Y/n)")
		if aerr != nil {
			return snap, aerr
		}
		if strings.EqualFold(answer, "n") {
			return snap, errQuit
		}
	}
}

func (s *chatSession) printReply(snap conversation.Snapshot) {
	if t, ok := snap.LastTurn(); ok && t.Role != conversation.RoleUser {
		msgs := presentation.Transcript([]conversation.Turn{t})
		fmt.Fprintln(s.out, s.term.Message(msgs[0]))
	}
}

// intake asks the form questions until the answers validate.
func (s *chatSession) intake() (intake.CustomerProfile, error) {
	for {
		var form intake.Form
		var err error

		if form.Name, err = s.ask("Name"); err != nil {
			return intake.CustomerProfile{}, err
		}
		if form.ZipCode, err = s.ask("Zip code"); err != nil {
			return intake.CustomerProfile{}, err
		}
		if form.ChronicCondition, err = s.askCondition(); err != nil {
			return intake.CustomerProfile{}, err
		}
		if intake.Condition(form.ChronicCondition) == intake.ConditionOther {
			if form.OtherCondition, err = s.ask("Describe your condition"); err != nil {
				return intake.CustomerProfile{}, err
			}
		}
		cuisines, err := s.ask("Cuisine preferences (comma separated, optional)")
		if err != nil {
			return intake.CustomerProfile{}, err
		}
		form.CuisinePreferences = intake.SplitList(cuisines)
		if form.AvoidIngredients, err = s.ask("Ingredients to avoid (comma separated, optional)"); err != nil {
			return intake.CustomerProfile{}, err
		}

		profile, err := intake.Validate(form)
		var verr *intake.ValidationError
		if errors.As(err, &verr) {
			for _, f := range verr.Fields {
				fmt.Fprintf(s.out, "  %s: %s\n", f.Field, f.Message)
			}
			fmt.Fprintln(s.out, "Please fill in the form again.")
			continue
		}
		return profile, err
	}
}

func (s *chatSession) askCondition() (string, error) {
	conds := intake.Conditions()
	fmt.Fprintln(s.out, "Chronic condition:")
	fmt.Fprintln(s.out, "  0) Prefer not to say")
	for i, c := range conds {
		fmt.Fprintf(s.out, "  %d) %s\n", i+1, c.Label())
	}
	answer, err := s.ask("Choose a number")
	if err != nil {
		return "", err
	}
	n, convErr := strconv.Atoi(answer)
	if convErr != nil || n <= 0 || n > len(conds) {
		// Unknown input is passed through so validation reports it.
		if convErr != nil && answer != "" {
			return answer, nil
		}
		return "", nil
	}
	return string(conds[n-1]), nil
}

func (s *chatSession) ask(prompt string) (string, error) {
	fmt.Fprintf(s.out, "%s: ", prompt)
	if !s.in.Scan() {
		if err := s.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	line := strings.TrimSpace(s.in.Text())
	if strings.EqualFold(line, cmdQuit) {
		return "", errQuit
	}
	return line, nil
}
