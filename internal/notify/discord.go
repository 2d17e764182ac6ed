package notify

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/bwmarrin/discordgo"
)

// maxMessageLen is Discord's limit for a single message.
const maxMessageLen = 2000

// ChannelSession is the part of *discordgo.Session used to post messages.
type ChannelSession interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type ChannelPoster struct {
	session        ChannelSession
	channelID      string
	attemptTimeout time.Duration
	maxAttempts    int
	sleep          func(time.Duration)
}

func NewChannelPoster(session ChannelSession, channelID string) *ChannelPoster {
	return &ChannelPoster{
		session:        session,
		channelID:      channelID,
		attemptTimeout: 12 * time.Second,
		maxAttempts:    2,
		sleep:          time.Sleep,
	}
}

// Post sends content to the channel, retrying once on timeouts.
func (p *ChannelPoster) Post(ctx context.Context, content string) error {
	content = truncate(content, maxMessageLen)

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, p.attemptTimeout)
		_, err := p.session.ChannelMessageSend(p.channelID, content, discordgo.WithContext(sendCtx))
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTemporaryOrTimeout(err) || attempt == p.maxAttempts {
			return err
		}
		p.sleep(time.Duration(300+rand.Intn(500)) * time.Millisecond)
	}
	return lastErr
}

func isTemporaryOrTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
