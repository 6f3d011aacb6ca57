package command

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"opomelilla_bot/internal/domain"
	"opomelilla_bot/internal/update"
)

var fixedNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func TestNewRequestNormalizesCommand(t *testing.T) {
	req := NewRequest(update.Message{
		Text: "  /Ranking@OpoMelillaBot Semanal ",
		Chat: update.Chat{ID: -100},
		From: &update.User{ID: 7, FirstName: "Ana"},
	})

	if req.Command != "/ranking" {
		t.Fatalf("expected normalized command /ranking, got %q", req.Command)
	}
	if len(req.Args) != 1 || req.Args[0] != "Semanal" {
		t.Fatalf("unexpected args %v", req.Args)
	}
	if req.UserID != 7 || req.ChatID != -100 || req.From.FirstName != "Ana" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestDispatchStaticAndUnknown(t *testing.T) {
	d, _ := newTestDispatcher(Options{})

	res := d.Dispatch(context.Background(), request("/HELP@OpoMelillaBot"))
	if res.Kind != KindReply || !strings.Contains(res.Text, "COMANDOS DISPONIBLES") {
		t.Fatalf("unexpected /help result %+v", res)
	}

	res = d.Dispatch(context.Background(), request("/Desconocido"))
	if res.Kind != KindReply {
		t.Fatalf("expected reply for unknown command, got %s", res.Kind)
	}
	if res.Text != "❓ Comando no reconocido: /Desconocido\n\n💡 Usa /help para ver todos los comandos disponibles." {
		t.Fatalf("unexpected unknown-command text %q", res.Text)
	}
}

func TestDispatchStartRegistersProfile(t *testing.T) {
	profiles := &stubProfiles{}
	d, _ := newTestDispatcher(Options{Profiles: profiles})

	res := d.Dispatch(context.Background(), request("/start"))
	if res.Kind != KindReply || !strings.Contains(res.Text, "Bienvenido a Permanencia OPOMELILLA") {
		t.Fatalf("unexpected /start result %+v", res)
	}
	if len(profiles.identities) != 1 || profiles.identities[0].UserID != 42 || profiles.identities[0].Username != "ana" {
		t.Fatalf("unexpected registrations %+v", profiles.identities)
	}
}

func TestDispatchHandlerErrorReturnsFailed(t *testing.T) {
	d, hook := newTestDispatcher(Options{Profiles: &stubProfiles{err: errors.New("mongo down")}})

	res := d.Dispatch(context.Background(), request("/start"))
	if res.Kind != KindFailed || res.Text != ErrorText {
		t.Fatalf("expected failed result, got %+v", res)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Data["event"] != "command_failed" {
		t.Fatalf("expected command_failed log, got %+v", entry)
	}
}

func TestDispatchRecoversFromPanics(t *testing.T) {
	d, hook := newTestDispatcher(Options{Study: panickingStudy{}})

	res := d.Dispatch(context.Background(), request("/progreso"))
	if res.Kind != KindFailed || res.Text != ErrorText {
		t.Fatalf("expected failed result after panic, got %+v", res)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Data["event"] != "command_panic" {
		t.Fatalf("expected command_panic log, got %+v", entry)
	}
}

func TestDispatchMyPlan(t *testing.T) {
	subs := &stubSubscriptions{}
	d, _ := newTestDispatcher(Options{Subscriptions: subs})

	res := d.Dispatch(context.Background(), request("/mi_plan"))
	if res.Kind != KindReply || res.Text != noSubscriptionText {
		t.Fatalf("expected no-subscription text, got %+v", res)
	}

	subs.found = true
	subs.sub = domain.Subscription{
		UserID: 42, Plan: domain.PlanPremium, AmountCents: 999, Active: true,
		CreatedAt: fixedNow, ExpiresAt: fixedNow.Add(30 * 24 * time.Hour),
	}
	res = d.Dispatch(context.Background(), request("/mi_plan"))
	if res.Kind != KindReply || !strings.Contains(res.Text, "Premium") || !strings.Contains(res.Text, "01/07/2025") {
		t.Fatalf("unexpected /mi_plan text %q", res.Text)
	}
}

func TestDispatchPlansSendsCatalogue(t *testing.T) {
	sender := &recordingSender{ok: true}
	d, _ := newTestDispatcher(Options{Sender: sender, SupportContact: "@soporte"})

	res := d.Dispatch(context.Background(), request("/planes"))
	if res.Kind != KindAlreadyHandled {
		t.Fatalf("expected already handled, got %+v", res)
	}
	if len(sender.texts) != 1 || !strings.Contains(sender.texts[0], "PLANES DE SUSCRIPCIÓN") || sender.chatIDs[0] != -100 {
		t.Fatalf("unexpected catalogue delivery %+v", sender)
	}

	sender.ok = false
	if res := d.Dispatch(context.Background(), request("/planes")); res.Kind != KindFailed {
		t.Fatalf("expected failed result when catalogue delivery fails, got %+v", res)
	}
}

func TestDispatchInvoices(t *testing.T) {
	invoices := &recordingInvoices{}
	d, _ := newTestDispatcher(Options{Invoices: invoices, ProviderToken: "provider"})

	for _, tc := range []struct {
		command string
		amount  int
	}{
		{command: "/premium", amount: 999},
		{command: "/basico", amount: 499},
	} {
		res := d.Dispatch(context.Background(), request(tc.command))
		if res.Kind != KindAlreadyHandled || res.Text != "" {
			t.Fatalf("%s: expected already handled without text, got %+v", tc.command, res)
		}
		last := invoices.params[len(invoices.params)-1]
		if last.Prices[0].Amount != tc.amount || last.ChatID != int64(-100) {
			t.Fatalf("%s: unexpected invoice %+v", tc.command, last)
		}
		if !strings.HasPrefix(last.Payload, "subscription_") {
			t.Fatalf("%s: unexpected payload %q", tc.command, last.Payload)
		}
	}

	invoices.err = errors.New("bad request")
	if res := d.Dispatch(context.Background(), request("/premium")); res.Kind != KindFailed {
		t.Fatalf("expected failed result on invoice error, got %+v", res)
	}
}

func TestDispatchStudyCommands(t *testing.T) {
	sessions := &stubStudy{}
	d, _ := newTestDispatcher(Options{Study: sessions})

	res := d.Dispatch(context.Background(), request("/pdc5"))
	if res.Kind != KindReply || res.Text != "start:/pdc5" {
		t.Fatalf("unexpected study start result %+v", res)
	}
	if res := d.Dispatch(context.Background(), request("/stop")); res.Text != "stop" {
		t.Fatalf("unexpected /stop result %+v", res)
	}
	if res := d.Dispatch(context.Background(), request("/progreso")); res.Text != "progress" {
		t.Fatalf("unexpected /progreso result %+v", res)
	}
	if res := d.Dispatch(context.Background(), request("/pdc99")); !strings.Contains(res.Text, "Comando no reconocido") {
		t.Fatalf("expected out-of-range study command to be unknown, got %+v", res)
	}
}

func TestDispatchStats(t *testing.T) {
	stats := &stubStats{}
	d, _ := newTestDispatcher(Options{Stats: stats})

	if res := d.Dispatch(context.Background(), request("/stats")); res.Text != noStatsText {
		t.Fatalf("expected no-stats text, got %q", res.Text)
	}

	stats.stats = domain.UserStats{UserID: 42, Answered: 4, Correct: 3, Accuracy: 75, TotalPoints: 130, Level: 2}
	res := d.Dispatch(context.Background(), request("/stats"))
	if !strings.Contains(res.Text, "TUS ESTADÍSTICAS") || !strings.Contains(res.Text, "<b>75%</b>") {
		t.Fatalf("unexpected /stats text %q", res.Text)
	}
}

func TestDispatchRanking(t *testing.T) {
	board := &stubLeaderboard{top: []domain.Profile{
		{UserID: 1, FirstName: "Ana", TotalPoints: 300},
		{UserID: 2, Username: "luis", TotalPoints: 200},
		{UserID: 3, FirstName: "<Eva>", TotalPoints: 150},
		{UserID: 4, TotalPoints: 90},
	}}
	d, _ := newTestDispatcher(Options{Leaderboard: board})

	res := d.Dispatch(context.Background(), request("/ranking mensual"))
	want := "🏆 <b>RANKING GENERAL</b>\n\n" +
		"🥇 Ana - 300 pts\n" +
		"🥈 @luis - 200 pts\n" +
		"🥉 &lt;Eva&gt; - 150 pts\n" +
		"4. Usuario 4 - 90 pts\n"
	if res.Kind != KindReply || res.Text != want {
		t.Fatalf("unexpected ranking:\n%s", res.Text)
	}
	if board.limit != RankingSize {
		t.Fatalf("expected limit %d, got %d", RankingSize, board.limit)
	}
}

func TestDispatchIsTotal(t *testing.T) {
	d, _ := newTestDispatcher(Options{})

	for _, text := range []string{"/", "//", "/@bot", "/start", "/premium", "/planes", "/aleatorias0", "/pdc5 extra", "/ranking semanal", "/ÑANDÚ"} {
		res := d.Dispatch(context.Background(), request(text))
		if res.Kind != KindAlreadyHandled && res.Text == "" {
			t.Fatalf("%q: expected text or already-handled, got %+v", text, res)
		}
	}
}

func TestDispatchWithoutUser(t *testing.T) {
	d, _ := newTestDispatcher(Options{})

	req := request("/help")
	req.UserID = 0
	if res := d.Dispatch(context.Background(), req); res.Text != missingUserText {
		t.Fatalf("expected missing-user text, got %+v", res)
	}
}

func newTestDispatcher(opts Options) (*Dispatcher, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	opts.Logger = logrus.NewEntry(logger)
	d := NewDispatcher(opts)
	d.now = func() time.Time { return fixedNow }
	return d, hook
}

func request(text string) Request {
	return NewRequest(update.Message{
		Text: text,
		Chat: update.Chat{ID: -100},
		From: &update.User{ID: 42, FirstName: "Ana", Username: "ana"},
	})
}

type stubProfiles struct {
	identities []domain.Identity
	err        error
}

func (s *stubProfiles) UpsertFromStart(_ context.Context, identity domain.Identity) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.identities = append(s.identities, identity)
	return true, nil
}

type stubSubscriptions struct {
	sub   domain.Subscription
	found bool
}

func (s *stubSubscriptions) Active(context.Context, int64) (domain.Subscription, bool, error) {
	return s.sub, s.found, nil
}

type stubStudy struct{}

func (stubStudy) Start(_ context.Context, _ int64, text string) (string, error) {
	return "start:" + text, nil
}
func (stubStudy) Stop(context.Context, int64) (string, error)     { return "stop", nil }
func (stubStudy) Progress(context.Context, int64) (string, error) { return "progress", nil }

type panickingStudy struct{ stubStudy }

func (panickingStudy) Progress(context.Context, int64) (string, error) { panic("boom") }

type stubStats struct {
	stats domain.UserStats
}

func (s *stubStats) Stats(context.Context, int64) (domain.UserStats, error) {
	return s.stats, nil
}

type stubLeaderboard struct {
	top   []domain.Profile
	limit int
}

func (s *stubLeaderboard) Top(_ context.Context, limit int) ([]domain.Profile, error) {
	s.limit = limit
	return s.top, nil
}

type recordingSender struct {
	ok      bool
	chatIDs []int64
	texts   []string
}

func (r *recordingSender) Send(_ context.Context, chatID int64, text string) bool {
	r.chatIDs = append(r.chatIDs, chatID)
	r.texts = append(r.texts, text)
	return r.ok
}

type recordingInvoices struct {
	params []*bot.SendInvoiceParams
	err    error
}

func (r *recordingInvoices) SendInvoice(_ context.Context, params *bot.SendInvoiceParams) error {
	if r.err != nil {
		return r.err
	}
	r.params = append(r.params, params)
	return nil
}
