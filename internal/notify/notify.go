// Package notify pushes attendance events to chat and push services through
// shoutrrr service URLs (telegram://, discord://, ntfy://, generic:// ...).
package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/faceattend/internal/attendance"
	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/logger"
	"github.com/tphakala/faceattend/internal/privacy"
)

// DefaultTitle is used when no title is configured.
const DefaultTitle = "Attendance"

// sender is the part of the shoutrrr router the notifier uses.
type sender interface {
	Send(message string, params *stypes.Params) []error
}

// Notifier is an attendance.Sink that sends one message per event to every
// configured service.
type Notifier struct {
	sender sender
	title  string
	node   string
	log    logger.Logger
}

// New builds a notifier for urls. node names this installation in the
// message and may be empty. A zero timeout keeps the shoutrrr default.
func New(urls []string, title, node string, timeout time.Duration) (*Notifier, error) {
	urls = slices.DeleteFunc(slices.Clone(urls), func(u string) bool { return strings.TrimSpace(u) == "" })
	if len(urls) == 0 {
		return nil, errors.Newf("at least one notification URL is required").
			Component("notify").
			Category(errors.CategoryConfiguration).
			Build()
	}

	router, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// service URLs carry tokens
		return nil, errors.New(privacy.WrapError(err)).
			Component("notify").
			Category(errors.CategoryConfiguration).
			Context("services", len(urls)).
			Build()
	}
	if timeout > 0 {
		router.Timeout = timeout
	}
	router.SetLogger(log.New(io.Discard, "", 0))

	return newNotifier(router, title, node), nil
}

func newNotifier(s sender, title, node string) *Notifier {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	return &Notifier{sender: s, title: title, node: node, log: GetLogger()}
}

// Record sends ev. The first delivery failure is returned; the other
// services are still tried.
func (n *Notifier) Record(ctx context.Context, ev attendance.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := stypes.Params{}
	params.SetTitle(n.title)

	var failed []error
	for _, err := range n.sender.Send(Message(ev, n.node), &params) {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) == 0 {
		n.log.Debug("attendance notification sent", logger.String("employee_id", ev.EmployeeID))
		return nil
	}
	return errors.New(privacy.WrapError(failed[0])).
		Component("notify").
		Category(errors.CategoryNotify).
		Context("employee_id", ev.EmployeeID).
		Context("failed_services", len(failed)).
		Build()
}

// Message renders the notification text for ev.
func Message(ev attendance.Event, node string) string {
	var b strings.Builder
	b.WriteString(ev.Name)
	if ev.Name == "" {
		b.WriteString(ev.EmployeeID)
	} else {
		fmt.Fprintf(&b, " (%s", ev.EmployeeID)
		if ev.Department != "" {
			fmt.Fprintf(&b, ", %s", ev.Department)
		}
		b.WriteString(")")
	}
	fmt.Fprintf(&b, " checked in at %s on %s", ev.Clock(), ev.Date())
	if node != "" {
		fmt.Fprintf(&b, " [%s]", node)
	}
	return b.String()
}

// GetLogger returns the notify module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("notify")
}

var _ attendance.Sink = (*Notifier)(nil)
