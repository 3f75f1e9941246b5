package quiz

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"sentinel-community/internal/clock"
	"sentinel-community/internal/config"
	"sentinel-community/internal/gateway"
	"sentinel-community/internal/storage"
	"sentinel-community/internal/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrQuizInProgress = errors.New("quiz already in progress")
	ErrNoActiveQuiz   = errors.New("no quiz is running")
	ErrNoQuestions    = errors.New("the question bank is empty")
)

// CooldownError is returned when a channel started a round too recently.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("quiz on cooldown, try again in %ds", int(e.Remaining.Seconds()+0.5))
}

type Verdict int

const (
	VerdictIgnored Verdict = iota
	VerdictDuplicate
	VerdictWrong
	VerdictCorrect
)

// Outcome is how a round ended. It is final once Done is closed.
type Outcome struct {
	Winners   []string
	TimedOut  bool
	Cancelled bool
}

type Round struct {
	ID        string
	Question  storage.Question
	ChannelID string
	PromptID  string

	answers    chan submission
	expired    chan struct{}
	expireOnce sync.Once
	cancelled  chan struct{}
	cancelOnce sync.Once
	done       chan struct{}

	attempted map[string]bool
	outcome   Outcome
}

type submission struct {
	userID   string
	username string
	given    string
	reply    chan Verdict
}

func (r *Round) Done() <-chan struct{} { return r.done }

func (r *Round) Outcome() Outcome {
	<-r.done
	return r.outcome
}

func (r *Round) expire() { r.expireOnce.Do(func() { close(r.expired) }) }

func (r *Round) cancel() { r.cancelOnce.Do(func() { close(r.cancelled) }) }

// Reward is the result of one correct answer.
type Reward struct {
	UserID string
	Points int
	Total  int
	Tier   storage.Tier
	TierUp bool
}

type Engine struct {
	mu     sync.Mutex
	active *Round

	cfg       config.QuizConfig
	guildID   string
	tiers     []storage.Tier
	questions []storage.Question
	cooldown  *utils.Cooldown
	store     *storage.Store
	gw        gateway.Gateway
	clock     clock.Clock
	pick      func(n int) int
	logger    *zap.Logger
}

func New(cfg config.QuizConfig, guildID string, tiers []storage.Tier, questions []storage.Question, store *storage.Store, gw gateway.Gateway, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		guildID:   guildID,
		tiers:     sortTiers(tiers),
		questions: questions,
		cooldown:  utils.NewCooldown(time.Duration(cfg.CooldownSeconds) * time.Second),
		store:     store,
		gw:        gw,
		clock:     clock.Real(),
		pick:      rand.Intn,
		logger:    logger,
	}
}

func (e *Engine) WithClock(c clock.Clock) { e.clock = c }

// WithPicker replaces the uniform question picker.
func (e *Engine) WithPicker(pick func(n int) int) { e.pick = pick }

func (e *Engine) Tiers() []storage.Tier {
	return append([]storage.Tier(nil), e.tiers...)
}

func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

// Start posts a random question in channelID and runs the round in the background.
func (e *Engine) Start(ctx context.Context, channelID string) (*Round, error) {
	e.mu.Lock()
	if e.active != nil {
		e.mu.Unlock()
		return nil, ErrQuizInProgress
	}
	if len(e.questions) == 0 {
		e.mu.Unlock()
		return nil, ErrNoQuestions
	}
	if wait := e.cooldown.Allow(channelID, e.clock.Now()); wait > 0 {
		e.mu.Unlock()
		return nil, &CooldownError{Remaining: wait}
	}
	question := e.questions[e.pick(len(e.questions))]
	question.Type = NormalizeType(question.Type)
	r := &Round{
		ID:        uuid.NewString(),
		Question:  question,
		ChannelID: channelID,
		answers:   make(chan submission),
		expired:   make(chan struct{}),
		cancelled: make(chan struct{}),
		done:      make(chan struct{}),
		attempted: make(map[string]bool),
	}
	e.active = r
	e.mu.Unlock()

	promptID, err := e.gw.SendEmbed(channelID, questionEmbed(r))
	if err != nil {
		e.release(r)
		close(r.done)
		return nil, fmt.Errorf("post question: %w", err)
	}
	e.mu.Lock()
	r.PromptID = promptID
	e.mu.Unlock()

	for _, emoji := range choiceEmojis(question) {
		if err := e.gw.AddReaction(channelID, promptID, emoji); err != nil {
			e.logger.Warn("quiz reaction failed", zap.String("emoji", emoji), zap.Error(err))
		}
	}

	timer := e.clock.AfterFunc(e.timeout(question), r.expire)
	e.logger.Info("quiz round started", zap.String("round_id", r.ID), zap.Int("question_id", question.QuestionID), zap.String("type", question.Type))
	go e.run(ctx, r, timer)
	return r, nil
}

// Cancel ends the running round without revealing the answer.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	r := e.active
	e.mu.Unlock()
	if r == nil {
		return ErrNoActiveQuiz
	}
	r.cancel()
	return nil
}

// HandleReaction submits a choice reaction on the active prompt.
func (e *Engine) HandleReaction(ctx context.Context, messageID, userID, username, emoji string) Verdict {
	r := e.current()
	if r == nil || r.PromptID != messageID || !isChoice(r.Question, emoji) {
		return VerdictIgnored
	}
	return e.submit(ctx, r, submission{userID: userID, username: username, given: emoji})
}

// HandleDirectMessage submits a fill-in-the-blank answer.
func (e *Engine) HandleDirectMessage(ctx context.Context, userID, username, content string) Verdict {
	r := e.current()
	if r == nil || r.Question.Type != storage.QuestionFillBlank || strings.TrimSpace(content) == "" {
		return VerdictIgnored
	}
	return e.submit(ctx, r, submission{userID: userID, username: username, given: content})
}

func (e *Engine) current() *Round {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil || e.active.PromptID == "" {
		return nil
	}
	return e.active
}

func (e *Engine) submit(ctx context.Context, r *Round, sub submission) Verdict {
	sub.reply = make(chan Verdict, 1)
	select {
	case r.answers <- sub:
	case <-r.done:
		return VerdictIgnored
	case <-ctx.Done():
		return VerdictIgnored
	}
	select {
	case verdict := <-sub.reply:
		return verdict
	case <-r.done:
		return VerdictIgnored
	}
}

func (e *Engine) run(ctx context.Context, r *Round, timer clock.Timer) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("quiz round panic", zap.String("round_id", r.ID), zap.Any("panic", rec))
		}
		timer.Stop()
		if err := e.gw.DeleteMessage(r.ChannelID, r.PromptID); err != nil && !errors.Is(err, gateway.ErrNotFound) {
			e.logger.Warn("quiz prompt delete failed", zap.String("round_id", r.ID), zap.Error(err))
		}
		e.release(r)
		close(r.done)
		e.logger.Info("quiz round finished", zap.String("round_id", r.ID), zap.Int("winners", len(r.outcome.Winners)), zap.Bool("timed_out", r.outcome.TimedOut))
	}()

	for {
		select {
		case sub := <-r.answers:
			sub.reply <- e.judge(ctx, r, sub)
			if len(r.outcome.Winners) >= e.maxWinners() {
				return
			}
		case <-r.expired:
			r.outcome.TimedOut = true
			if len(r.outcome.Winners) == 0 {
				e.send(r.ChannelID, fmt.Sprintf("Time's up! The answer was: %s", revealAnswer(r.Question)))
			}
			return
		case <-r.cancelled:
			r.outcome.Cancelled = true
			return
		case <-ctx.Done():
			r.outcome.Cancelled = true
			return
		}
	}
}

// judge runs on the round goroutine only.
func (e *Engine) judge(ctx context.Context, r *Round, sub submission) Verdict {
	if r.attempted[sub.userID] {
		return VerdictDuplicate
	}
	r.attempted[sub.userID] = true

	correct := e.isCorrect(r.Question, sub.given)
	if err := e.store.EnsureUser(ctx, sub.userID, sub.username); err != nil {
		e.logger.Warn("quiz ensure user failed", zap.String("user_id", sub.userID), zap.Error(err))
	}
	err := e.store.AddQuizAnswer(ctx, storage.QuizAnswer{
		UserID:      sub.userID,
		QuestionID:  r.Question.QuestionID,
		AnswerGiven: answerText(r.Question, sub.given),
		Correct:     correct,
		AnsweredAt:  e.clock.Now(),
	})
	if err != nil {
		e.logger.Warn("quiz answer not recorded", zap.String("user_id", sub.userID), zap.Error(err))
	}

	if !correct {
		if r.Question.Type == storage.QuestionFillBlank {
			_ = e.gw.SendDM(sub.userID, "Incorrect answer.")
		}
		return VerdictWrong
	}

	r.outcome.Winners = append(r.outcome.Winners, sub.userID)
	reward, err := e.Award(ctx, sub.userID, sub.username)
	if err != nil {
		e.logger.Error("quiz award failed", zap.String("user_id", sub.userID), zap.Error(err))
		return VerdictCorrect
	}
	e.send(r.ChannelID, fmt.Sprintf("<@%s> answered correctly and earned %d points!", sub.userID, reward.Points))
	if reward.TierUp {
		e.send(r.ChannelID, fmt.Sprintf("<@%s> reached %s!", sub.userID, reward.Tier.Name))
		e.grantTierRole(sub.userID, reward.Tier)
	}
	return VerdictCorrect
}

func (e *Engine) isCorrect(q storage.Question, given string) bool {
	switch q.Type {
	case storage.QuestionMultipleChoice, storage.QuestionTrueFalse:
		want, ok := correctChoice(q)
		return ok && want == given
	default:
		return matchesText(q, given)
	}
}

// Award credits tier_points for the user's current tier and upgrades the tier when earned.
func (e *Engine) Award(ctx context.Context, userID, username string) (Reward, error) {
	if err := e.store.EnsureUser(ctx, userID, username); err != nil {
		return Reward{}, err
	}
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return Reward{}, err
	}
	points := e.pointsFor(user.CurrentTier)
	updated, err := e.store.AwardQuizPoints(ctx, userID, points)
	if err != nil {
		return Reward{}, err
	}

	reward := Reward{UserID: userID, Points: points, Total: updated.Points}
	reward.Tier, _ = tierByID(e.tiers, updated.CurrentTier)
	next, ok := ComputeTier(e.tiers, updated.Points)
	if !ok || !isUpgrade(e.tiers, updated.CurrentTier, next) {
		return reward, nil
	}
	if err := e.store.SetTier(ctx, userID, next.TierID); err != nil {
		e.logger.Warn("tier upgrade not persisted", zap.String("user_id", userID), zap.Error(err))
		return reward, nil
	}
	reward.Tier = next
	reward.TierUp = true
	return reward, nil
}

// Recompute sets current_tier from the stored points. Unlike Award it may move the tier down.
func (e *Engine) Recompute(ctx context.Context, userID string) (storage.Tier, bool, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return storage.Tier{}, false, err
	}
	next, ok := ComputeTier(e.tiers, user.Points)
	if !ok {
		return storage.Tier{}, false, errors.New("no tiers configured")
	}
	if next.TierID == user.CurrentTier {
		return next, false, nil
	}
	if err := e.store.SetTier(ctx, userID, next.TierID); err != nil {
		return storage.Tier{}, false, err
	}
	return next, true, nil
}

func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]storage.User, error) {
	return e.store.Leaderboard(ctx, limit)
}

func (e *Engine) grantTierRole(userID string, tier storage.Tier) {
	if tier.RoleName == "" || e.guildID == "" {
		return
	}
	roleID, err := e.gw.RoleIDByName(e.guildID, tier.RoleName)
	if err != nil {
		e.logger.Warn("tier role lookup failed", zap.String("role", tier.RoleName), zap.Error(err))
		return
	}
	if err := e.gw.AddRole(e.guildID, userID, roleID); err != nil {
		e.logger.Warn("tier role grant failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (e *Engine) release(r *Round) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == r {
		e.active = nil
	}
}

func (e *Engine) send(channelID, content string) {
	if _, err := e.gw.SendMessage(channelID, content); err != nil {
		e.logger.Warn("quiz message failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func (e *Engine) pointsFor(tierID int) int {
	if points, ok := e.cfg.TierPoints[tierID]; ok {
		return points
	}
	return e.cfg.TierPoints[1]
}

func (e *Engine) maxWinners() int {
	if e.cfg.MaxWinners <= 0 {
		return 3
	}
	return e.cfg.MaxWinners
}

func (e *Engine) timeout(q storage.Question) time.Duration {
	seconds := e.cfg.ChoiceTimeoutSeconds
	if q.Type == storage.QuestionFillBlank {
		seconds = e.cfg.AnswerTimeoutSeconds
	}
	if seconds <= 0 {
		seconds = 30
	}
	return time.Duration(seconds) * time.Second
}

func questionEmbed(r *Round) *discordgo.MessageEmbed {
	q := r.Question
	var b strings.Builder
	b.WriteString(q.Question)
	switch q.Type {
	case storage.QuestionMultipleChoice:
		b.WriteString("\n\n")
		for i, option := range q.Options {
			fmt.Fprintf(&b, "%s %s\n", ChoiceEmoji(i), option)
		}
	case storage.QuestionTrueFalse:
		fmt.Fprintf(&b, "\n\nReact %s for true or %s for false.", EmojiTrue, EmojiFalse)
	case storage.QuestionFillBlank:
		b.WriteString("\n\nSend me your answer in a direct message.")
	}
	return &discordgo.MessageEmbed{
		Title:       "Quiz",
		Description: b.String(),
		Footer:      &discordgo.MessageEmbedFooter{Text: "round " + r.ID[:8]},
	}
}

func answerText(q storage.Question, given string) string {
	if q.Type == storage.QuestionMultipleChoice {
		for i, option := range q.Options {
			if ChoiceEmoji(i) == given {
				return option
			}
		}
	}
	if q.Type == storage.QuestionTrueFalse {
		switch given {
		case EmojiTrue:
			return "true"
		case EmojiFalse:
			return "false"
		}
	}
	return strings.TrimSpace(given)
}
