package moodcli

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
	"time"

	"peggymeter/apiclient"
	"peggymeter/service/database"
	"peggymeter/service/model"
	"peggymeter/service/storage"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

const (
	defaultTimeout = 30 * time.Second
	chartWidth     = 40
)

// Reflector produces a short reflection on a mood history.
type Reflector interface {
	Reflect(ctx context.Context, records []model.MoodRecord, now time.Time) (string, error)
}

// Exporter uploads encoded mood histories and lists earlier uploads.
type Exporter interface {
	UploadExport(ctx context.Context, objectName, contentType string, data []byte) (string, error)
	ListExports(ctx context.Context, uid string) ([]storage.ExportObject, error)
}

// Config controls how the interactive mood CLI behaves. Exactly one of Controller or Client
// must be set.
type Config struct {
	// Controller runs the CLI against the local data controller.
	Controller *database.Controller
	// Client runs the CLI against a running peggymeter HTTP service.
	Client *apiclient.Client

	Reflector Reflector
	Exporter  Exporter
	Timeout   time.Duration

	In  io.Reader
	Out io.Writer
}

// Run launches the interactive mood CLI.
func Run(ctx context.Context, cfg Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if (cfg.Controller == nil) == (cfg.Client == nil) {
		return fmt.Errorf("exactly one of a data controller or an api client is required")
	}
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var b backend
	if cfg.Controller != nil {
		local := &localBackend{ctrl: cfg.Controller, reflector: cfg.Reflector}
		local.watch(cfg.Out)
		stopLoader := startLoader(cfg.Out, " Signing in")
		err := cfg.Controller.Wait(ctx)
		stopLoader()
		if err != nil {
			return err
		}
		b = local
	} else {
		b = &remoteBackend{client: cfg.Client}
	}

	s := &session{backend: b, exporter: cfg.Exporter, timeout: cfg.Timeout, out: cfg.Out, now: time.Now}
	return s.loop(ctx, cfg.In)
}

type session struct {
	backend  backend
	exporter Exporter
	timeout  time.Duration
	out      io.Writer
	now      func() time.Time
}

func (s *session) loop(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(s.out, "Mood CLI ready. Type 'help' for commands, 'exit' to quit.")
	for {
		fmt.Fprintf(s.out, "%s ", label("peggy>"))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name, args := splitCommand(line)
		if name == "exit" || name == "quit" {
			fmt.Fprintln(s.out, "Goodbye!")
			return nil
		}
		if err := s.dispatch(ctx, name, args); err != nil {
			fmt.Fprintf(s.out, "%s %v\n", errLabel("error:"), err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	return nil
}

func (s *session) dispatch(ctx context.Context, name, args string) error {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	switch name {
	case "help", "?":
		s.printHelp()
		return nil
	case "log", "add":
		return s.logMood(reqCtx, args)
	case "list", "history":
		return s.list(reqCtx)
	case "chart":
		return s.chart(reqCtx)
	case "delete", "rm":
		return s.delete(reqCtx, args)
	case "settings":
		return s.showSettings(reqCtx)
	case "remind":
		return s.remind(reqCtx, args)
	case "consent":
		return s.consent(reqCtx, args)
	case "reflect":
		return s.reflect(reqCtx)
	case "export":
		return s.export(reqCtx)
	case "exports":
		return s.listExports(reqCtx)
	default:
		return fmt.Errorf("unknown command %q (try 'help')", name)
	}
}

func (s *session) printHelp() {
	fmt.Fprintln(s.out, `Commands:
  log <sad|ok|happy|1-3> [comment]  record how you feel
  list                              show your mood history
  chart                             plot your recent moods
  delete <id>                       remove a mood record
  settings                          show reminder and consent settings
  remind off | remind on [HH:MM]    configure the daily reminder
  consent on|off                    toggle data collection consent
  reflect                           ask for a reflection on recent moods
  export                            upload your mood history
  exports                           list earlier uploads
  exit                              quit`)
}

func (s *session) logMood(ctx context.Context, args string) error {
	levelArg, comment := splitCommand(args)
	if levelArg == "" {
		return fmt.Errorf("usage: log <sad|ok|happy|1-3> [comment]")
	}
	level, err := model.ParseMoodLevel(levelArg)
	if err != nil {
		return err
	}
	saved, err := s.backend.SaveMood(ctx, model.MoodRecord{Level: level, Comment: comment})
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Saved %s %s (%s)\n", saved.Level.Emoji(), saved.Level, shortID(saved.ID))
	return nil
}

func (s *session) list(ctx context.Context) error {
	records, err := s.backend.Moods(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(s.out, "No moods recorded yet. Try 'log happy'.")
		return nil
	}
	for _, rec := range records {
		fmt.Fprintln(s.out, formatRecord(rec))
	}
	return nil
}

func (s *session) chart(ctx context.Context) error {
	records, err := s.backend.Moods(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(s.out, "No moods recorded yet.")
		return nil
	}
	fmt.Fprintf(s.out, "%s %s\n", label("mood:"), sparkline(records, chartWidth))
	fmt.Fprintf(s.out, "%s %s\n", label("from:"), records[max(0, len(records)-chartWidth)].Timestamp.Local().Format("Jan 2 15:04"))
	return nil
}

func (s *session) delete(ctx context.Context, args string) error {
	prefix := strings.TrimSpace(args)
	if prefix == "" {
		return fmt.Errorf("usage: delete <id>")
	}
	records, err := s.backend.Moods(ctx)
	if err != nil {
		return err
	}
	id, err := resolveID(records, prefix)
	if err != nil {
		return err
	}
	if err := s.backend.DeleteMood(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Deleted %s\n", shortID(id))
	return nil
}

func (s *session) showSettings(ctx context.Context) error {
	settings, err := s.backend.Settings(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, formatSettings(settings))
	return nil
}

func (s *session) remind(ctx context.Context, args string) error {
	state, at := splitCommand(args)
	settings, err := s.backend.Settings(ctx)
	if err != nil {
		return err
	}
	switch state {
	case "on":
		settings.RemindersEnabled = true
		if at != "" {
			settings.ReminderTime = at
		}
	case "off":
		settings.RemindersEnabled = false
	default:
		return fmt.Errorf("usage: remind off | remind on [HH:MM]")
	}
	updated, err := s.backend.UpdateSettings(ctx, settings)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, formatSettings(updated))
	return nil
}

func (s *session) consent(ctx context.Context, args string) error {
	on, err := parseToggle(args)
	if err != nil {
		return fmt.Errorf("usage: consent on|off")
	}
	settings, err := s.backend.Settings(ctx)
	if err != nil {
		return err
	}
	settings.DataCollectionConsent = on
	updated, err := s.backend.UpdateSettings(ctx, settings)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, formatSettings(updated))
	return nil
}

func (s *session) reflect(ctx context.Context) error {
	stopLoader := startLoader(s.out, " Thinking")
	text, err := s.backend.Reflect(ctx)
	stopLoader()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s %s\n", label("Reflection:"), text)
	return nil
}

func (s *session) export(ctx context.Context) error {
	if s.exporter == nil {
		return fmt.Errorf("export is not configured (set EXPORT_BUCKET and AWS credentials)")
	}
	uid, err := s.backend.UID(ctx)
	if err != nil {
		return err
	}
	settings, err := s.backend.Settings(ctx)
	if err != nil {
		return err
	}
	records, err := s.backend.Moods(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	data, err := storage.EncodeExport(uid, settings, records, now)
	if err != nil {
		return err
	}
	stopLoader := startLoader(s.out, " Uploading")
	location, err := s.exporter.UploadExport(ctx, storage.ExportObjectName(uid, now), "application/json", data)
	stopLoader()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Exported %d records to %s\n", len(records), location)
	return nil
}

func (s *session) listExports(ctx context.Context) error {
	if s.exporter == nil {
		return fmt.Errorf("export is not configured (set EXPORT_BUCKET and AWS credentials)")
	}
	uid, err := s.backend.UID(ctx)
	if err != nil {
		return err
	}
	objects, err := s.exporter.ListExports(ctx, uid)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		fmt.Fprintln(s.out, "No exports yet. Try 'export'.")
		return nil
	}
	for _, obj := range objects {
		fmt.Fprintf(s.out, "%s  %6d bytes  %s\n", obj.LastModified.Local().Format("Jan 2 15:04"), obj.Size, obj.URL)
	}
	return nil
}

// startLoader spins a loader using github.com/briandowns/spinner until stopped.
func startLoader(out io.Writer, text string) func() {
	s := spinner.New(spinner.CharSets[14], 150*time.Millisecond)
	s.Writer = out
	s.Prefix = " "
	s.Suffix = color.New(color.FgHiCyan).Sprint(text)
	s.Color("cyan")
	s.Start()
	return func() {
		s.Stop()
	}
}

func label(text string) string {
	return color.New(color.FgHiCyan).Sprint(text)
}

func errLabel(text string) string {
	return color.New(color.FgHiRed).Sprint(text)
}

func splitCommand(line string) (string, string) {
	line = strings.TrimSpace(line)
	name, rest, _ := strings.Cut(line, " ")
	return strings.ToLower(name), strings.TrimSpace(rest)
}

func parseToggle(arg string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "on", "yes", "true":
		return true, nil
	case "off", "no", "false":
		return false, nil
	}
	return strconv.ParseBool(arg)
}

// resolveID expands an id prefix, as printed by list, into a full record id.
func resolveID(records []model.MoodRecord, prefix string) (string, error) {
	for _, rec := range records {
		if rec.ID == prefix {
			return rec.ID, nil
		}
	}
	var match string
	for _, rec := range records {
		if strings.HasPrefix(rec.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("id %q is ambiguous", prefix)
			}
			match = rec.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no mood record with id %q", prefix)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatRecord(rec model.MoodRecord) string {
	line := fmt.Sprintf("%s  %s %-5s  %s", shortID(rec.ID), rec.Level.Emoji(), rec.Level, rec.Timestamp.Local().Format("Mon Jan 2 15:04"))
	if rec.Comment != "" {
		line += "  " + rec.Comment
	}
	return line
}

func formatSettings(s model.Settings) string {
	reminder := "off"
	if s.RemindersEnabled {
		reminder = "daily at " + s.ReminderTime
	}
	consent := "no"
	if s.DataCollectionConsent {
		consent = "yes"
	}
	return fmt.Sprintf("reminders: %s, data collection consent: %s", reminder, consent)
}

var sparkBars = map[model.MoodLevel]rune{
	model.MoodSad:   '▁',
	model.MoodOK:    '▄',
	model.MoodHappy: '█',
}

// sparkline renders the last width records, oldest first, one bar per record.
func sparkline(records []model.MoodRecord, width int) string {
	if width > 0 && len(records) > width {
		records = records[len(records)-width:]
	}
	var b strings.Builder
	for _, rec := range records {
		bar, ok := sparkBars[rec.Level]
		if !ok {
			bar = ' '
		}
		b.WriteRune(bar)
	}
	return b.String()
}

// backend is what the CLI needs from either the local controller or the HTTP API.
type backend interface {
	UID(ctx context.Context) (string, error)
	Moods(ctx context.Context) ([]model.MoodRecord, error)
	SaveMood(ctx context.Context, rec model.MoodRecord) (model.MoodRecord, error)
	DeleteMood(ctx context.Context, id string) error
	Settings(ctx context.Context) (model.Settings, error)
	UpdateSettings(ctx context.Context, s model.Settings) (model.Settings, error)
	Reflect(ctx context.Context) (string, error)
}

type localBackend struct {
	ctrl      *database.Controller
	reflector Reflector
}

// watch registers listeners that announce remote changes. It runs before sign in so the
// controller buffers them until the adapters exist.
func (b *localBackend) watch(out io.Writer) {
	loaded := false
	b.ctrl.AddMoodListener(model.MoodListenerFunc(func(records []model.MoodRecord) {
		if !loaded {
			loaded = true
			fmt.Fprintf(out, "\r%s loaded %d mood records\n", label("sync:"), len(records))
		}
	}))
	var last *model.Settings
	b.ctrl.AddSettingListener(model.SettingListenerFunc(func(s model.Settings) {
		if last != nil && last.RemindersEnabled == s.RemindersEnabled && last.ReminderTime == s.ReminderTime {
			return
		}
		last = &s
		if s.RemindersEnabled {
			fmt.Fprintf(out, "\r%s daily reminder at %s\n", label("sync:"), s.ReminderTime)
		}
	}))
}

func (b *localBackend) UID(ctx context.Context) (string, error) {
	uid := b.ctrl.UID()
	if uid == "" {
		return "", database.ErrNotReady
	}
	return uid, nil
}

func (b *localBackend) Moods(ctx context.Context) ([]model.MoodRecord, error) {
	if adapter := b.ctrl.MoodAdapter(); adapter != nil {
		if err := adapter.Sync(ctx); err != nil {
			return nil, err
		}
	}
	return b.ctrl.Moods()
}

func (b *localBackend) SaveMood(ctx context.Context, rec model.MoodRecord) (model.MoodRecord, error) {
	return b.ctrl.SaveMood(ctx, rec)
}

func (b *localBackend) DeleteMood(ctx context.Context, id string) error {
	return b.ctrl.DeleteMood(ctx, id)
}

func (b *localBackend) Settings(ctx context.Context) (model.Settings, error) {
	if adapter := b.ctrl.SettingAdapter(); adapter != nil {
		if err := adapter.Sync(ctx); err != nil {
			return model.Settings{}, err
		}
	}
	return b.ctrl.Settings()
}

func (b *localBackend) UpdateSettings(ctx context.Context, s model.Settings) (model.Settings, error) {
	return b.ctrl.UpdateSettings(ctx, s)
}

func (b *localBackend) Reflect(ctx context.Context) (string, error) {
	if b.reflector == nil {
		return "", fmt.Errorf("reflections are not configured (set GOOGLE_API_KEY)")
	}
	records, err := b.ctrl.Moods()
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", fmt.Errorf("no mood records yet")
	}
	return b.reflector.Reflect(ctx, records, time.Now())
}

type remoteBackend struct {
	client *apiclient.Client
}

func (b *remoteBackend) UID(ctx context.Context) (string, error) {
	status, uid, err := b.client.Health(ctx)
	if err != nil {
		return "", err
	}
	if uid == "" {
		return "", fmt.Errorf("server is %s", status)
	}
	return uid, nil
}

func (b *remoteBackend) Moods(ctx context.Context) ([]model.MoodRecord, error) {
	return b.client.ListMoods(ctx)
}

func (b *remoteBackend) SaveMood(ctx context.Context, rec model.MoodRecord) (model.MoodRecord, error) {
	return b.client.SaveMood(ctx, rec)
}

func (b *remoteBackend) DeleteMood(ctx context.Context, id string) error {
	return b.client.DeleteMood(ctx, id)
}

func (b *remoteBackend) Settings(ctx context.Context) (model.Settings, error) {
	return b.client.Settings(ctx)
}

func (b *remoteBackend) UpdateSettings(ctx context.Context, s model.Settings) (model.Settings, error) {
	return b.client.UpdateSettings(ctx, s)
}

func (b *remoteBackend) Reflect(ctx context.Context) (string, error) {
	text, err := b.client.Reflection(ctx)
	if errors.Is(err, apiclient.ErrNotReady) {
		return "", fmt.Errorf("server is still signing in")
	}
	return text, err
}
