package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

const (
	domPollInterval = 100 * time.Millisecond
	// cdpClickTimeout bounds the native click before the JS fallback is tried.
	cdpClickTimeout = 3 * time.Second
	finalButtonAttr = "data-fp-final"
	navTokenGlobal  = "__fpNavToken"
)

// errNotSelect is returned by SelectOption for elements other than <select>.
var errNotSelect = errors.New("element is not a select")

// buttonCandidates lists the elements FindButtonByLabel considers button-like.
const buttonCandidates = `button, input[type=submit], input[type=button], input[type=image], [role=button]`

// Session is one isolated browser (its own Chrome process and profile) driven over CDP.
type Session struct {
	id         string
	ctx        context.Context
	tracker    *networkTracker
	navTimeout time.Duration
	logger     *zap.Logger

	release   func(ctx context.Context) error
	closeOnce sync.Once
	tagSeq    atomic.Int64
}

var _ schemas.Session = (*Session)(nil)

// ID returns the unique session identifier.
func (s *Session) ID() string { return s.id }

// scoped derives a context from the browser context that also ends with the caller's context.
func (s *Session) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(s.ctx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		inner := cancel
		cancel = func() { cancelDeadline(); inner() }
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := s.scoped(ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (s *Session) eval(ctx context.Context, script string, res interface{}) error {
	return s.run(ctx, chromedp.Evaluate(script, res))
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(s)
	if err != nil {
		// Marshalling a plain string cannot fail.
		return `""`
	}
	return string(b)
}

// withElement wraps body in a function where `el` is the element matched by selector.
// The function returns 'missing' when nothing matches or the selector is invalid.
func withElement(selector, body string) string {
	return fmt.Sprintf(`(() => {
  let el = null;
  try { el = document.querySelector(%s); } catch (e) { return 'missing'; }
  if (!el) return 'missing';
  const fire = (name) => el.dispatchEvent(new Event(name, { bubbles: true }));
  %s
})()`, jsString(selector), body)
}

// statusError maps the status strings returned by element scripts to errors.
func statusError(status, selector string) error {
	switch status {
	case "ok":
		return nil
	case "missing":
		return fmt.Errorf("%w: %s", schemas.ErrElementNotFound, selector)
	case "uncheckable":
		return fmt.Errorf("%w: %s", schemas.ErrNotCheckable, selector)
	case "notselect":
		return fmt.Errorf("%w: %s", errNotSelect, selector)
	case "nooption":
		return fmt.Errorf("%w: no matching option in %s", schemas.ErrElementNotFound, selector)
	default:
		return fmt.Errorf("unexpected script status %q for %s", status, selector)
	}
}

func (s *Session) elementScript(ctx context.Context, selector, body string) error {
	var status string
	if err := s.eval(ctx, withElement(selector, body), &status); err != nil {
		return err
	}
	return statusError(status, selector)
}

type navState struct {
	Stale bool   `json:"stale"`
	Ready string `json:"ready"`
	Href  string `json:"href"`
}

// Navigate loads url and waits until the new document has left the loading state.
// Sub-resources and the load event are not awaited.
func (s *Session) Navigate(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, s.navTimeout)
	defer cancel()

	// Mark the current document so a stale readyState is never mistaken for the new one.
	token := uuid.NewString()
	var marked bool
	if err := s.eval(ctx, fmt.Sprintf(`(() => { window.%s = %s; return true; })()`, navTokenGlobal, jsString(token)), &marked); err != nil {
		return s.navError(ctx, url, err)
	}

	var nav page.NavigateReturns
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return cdp.Execute(ctx, page.CommandNavigate, page.Navigate(url), &nav)
	}))
	if err != nil {
		return s.navError(ctx, url, err)
	}
	if nav.ErrorText != "" {
		return fmt.Errorf("%w: %s: %s", schemas.ErrNavigation, url, nav.ErrorText)
	}

	probe := fmt.Sprintf(`(() => ({ stale: window.%s === %s, ready: document.readyState, href: location.href }))()`,
		navTokenGlobal, jsString(token))
	ticker := time.NewTicker(domPollInterval)
	defer ticker.Stop()
	for {
		var st navState
		// Evaluation fails while the execution context is being replaced; keep polling.
		if err := s.eval(ctx, probe, &st); err == nil && !st.Stale && st.Ready != "loading" {
			if strings.HasPrefix(st.Href, "chrome-error://") {
				return fmt.Errorf("%w: %s: browser error page", schemas.ErrNavigation, url)
			}
			s.logger.Debug("Navigation reached DOM ready.", zap.String("url", url), zap.String("ready_state", st.Ready))
			return nil
		}
		select {
		case <-ctx.Done():
			return s.navError(ctx, url, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Session) navError(ctx context.Context, url string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: loading %s timed out after %s", schemas.ErrNavigation, url, s.navTimeout)
	}
	return fmt.Errorf("%w: %s: %w", schemas.ErrNavigation, url, err)
}

// HTML returns the serialized markup of the current document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.eval(ctx, `document.documentElement ? document.documentElement.outerHTML : ""`, &html)
	if err != nil {
		return "", fmt.Errorf("failed to read document html: %w", err)
	}
	return html, nil
}

// Exists reports whether selector matches an element. Invalid selectors match nothing.
func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	script := fmt.Sprintf(`(() => { try { return document.querySelector(%s) !== null; } catch (e) { return false; } })()`, jsString(selector))
	if err := s.eval(ctx, script, &found); err != nil {
		return false, err
	}
	return found, nil
}

// Fill sets the value through the native setter so framework bindings observe the change.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	body := fmt.Sprintf(`
  const value = %s;
  if (el.focus) el.focus();
  let proto = null;
  if (el instanceof HTMLTextAreaElement) proto = HTMLTextAreaElement.prototype;
  else if (el instanceof HTMLInputElement) proto = HTMLInputElement.prototype;
  const desc = proto ? Object.getOwnPropertyDescriptor(proto, 'value') : null;
  if (desc && desc.set) desc.set.call(el, value);
  else if (el.isContentEditable) el.textContent = value;
  else el.value = value;
  fire('input');
  fire('change');
  if (el.blur) el.blur();
  return 'ok';`, jsString(value))
	return s.elementScript(ctx, selector, body)
}

// Check ensures a checkbox or radio is checked.
func (s *Session) Check(ctx context.Context, selector string) error {
	const body = `
  const type = (el.type || '').toLowerCase();
  if (!(el instanceof HTMLInputElement) || (type !== 'checkbox' && type !== 'radio')) return 'uncheckable';
  if (!el.checked) el.click();
  if (!el.checked) {
    el.checked = true;
    fire('input');
    fire('change');
  }
  return 'ok';`
	return s.elementScript(ctx, selector, body)
}

// Click dispatches a real mouse click, falling back to HTMLElement.click() when the
// element cannot be clicked natively (covered, zero sized, off screen).
func (s *Session) Click(ctx context.Context, selector string) error {
	found, err := s.Exists(ctx, selector)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", schemas.ErrElementNotFound, selector)
	}

	clickCtx, cancel := context.WithTimeout(ctx, cdpClickTimeout)
	nativeErr := s.run(clickCtx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
	cancel()
	if nativeErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.Debug("Native click failed, using script click.", zap.String("selector", selector), zap.Error(nativeErr))
	const body = `
  if (el.scrollIntoView) el.scrollIntoView({ block: 'center' });
  el.click();
  return 'ok';`
	return s.elementScript(ctx, selector, body)
}

// SelectOption selects the option whose value, or else visible text, equals value.
func (s *Session) SelectOption(ctx context.Context, selector, value string) error {
	body := fmt.Sprintf(`
  if (!(el instanceof HTMLSelectElement)) return 'notselect';
  const want = %s;
  const opts = Array.from(el.options);
  const text = (o) => (o.textContent || '').trim();
  const opt = opts.find(o => o.value === want) ||
    opts.find(o => text(o) === want.trim()) ||
    opts.find(o => want.trim() !== '' && text(o).includes(want.trim()));
  if (!opt) return 'nooption';
  el.value = opt.value;
  opt.selected = true;
  fire('input');
  fire('change');
  return 'ok';`, jsString(value))
	return s.elementScript(ctx, selector, body)
}

// ElementKind classifies the element matched by selector. KindMissing means no match.
func (s *Session) ElementKind(ctx context.Context, selector string) (schemas.ElementKind, error) {
	script := fmt.Sprintf(`(() => {
  let el = null;
  try { el = document.querySelector(%s); } catch (e) { return ''; }
  if (!el) return '';
  const tag = el.tagName.toLowerCase();
  if (tag === 'select' || tag === 'textarea' || tag === 'button') return tag;
  if (tag === 'input') {
    const t = (el.type || 'text').toLowerCase();
    if (t === 'checkbox' || t === 'radio') return t;
    if (t === 'submit' || t === 'button' || t === 'image' || t === 'reset') return 'button';
    return 'text';
  }
  if ((el.getAttribute('role') || '') === 'button') return 'button';
  return 'other';
})()`, jsString(selector))

	var kind string
	if err := s.eval(ctx, script, &kind); err != nil {
		return schemas.KindMissing, err
	}
	switch k := schemas.ElementKind(kind); k {
	case schemas.KindMissing, schemas.KindSelect, schemas.KindCheckbox, schemas.KindRadio,
		schemas.KindText, schemas.KindTextarea, schemas.KindButton:
		return k, nil
	default:
		return schemas.KindOther, nil
	}
}

// jsPattern converts a Go regular expression with an optional leading (?i) into
// a JavaScript pattern and flags.
func jsPattern(pattern string) (string, string) {
	if rest, ok := strings.CutPrefix(pattern, "(?i)"); ok {
		return rest, "i"
	}
	return pattern, ""
}

// FindButtonByLabel tags the first visible, enabled button-like element whose label
// matches pattern and returns a selector addressing it.
func (s *Session) FindButtonByLabel(ctx context.Context, pattern, exclude string) (string, bool, error) {
	source, flags := jsPattern(pattern)
	tag := fmt.Sprintf("%d", s.tagSeq.Add(1))

	script := fmt.Sprintf(`(() => {
  const re = new RegExp(%s, %s);
  const exclude = %s;
  let excluded = [];
  if (exclude) { try { excluded = Array.from(document.querySelectorAll(exclude)); } catch (e) {} }
  for (const el of document.querySelectorAll(%s)) {
    if (excluded.includes(el) || el.disabled) continue;
    const rect = el.getBoundingClientRect();
    const style = window.getComputedStyle(el);
    if (rect.width === 0 || rect.height === 0 || style.visibility === 'hidden' || style.display === 'none') continue;
    const label = [el.innerText, el.value, el.getAttribute('aria-label'), el.getAttribute('alt'), el.getAttribute('title')]
      .filter(Boolean).join(' ').trim();
    if (!label || !re.test(label)) continue;
    el.setAttribute(%s, %s);
    return true;
  }
  return false;
})()`, jsString(source), jsString(flags), jsString(exclude), jsString(buttonCandidates), jsString(finalButtonAttr), jsString(tag))

	var found bool
	if err := s.eval(ctx, script, &found); err != nil {
		return "", false, fmt.Errorf("failed to scan for final button: %w", err)
	}
	if !found {
		return "", false, nil
	}
	return fmt.Sprintf(`[%s="%s"]`, finalButtonAttr, tag), true, nil
}

// WaitDOMReady polls until the current document is no longer loading.
func (s *Session) WaitDOMReady(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.navTimeout)
		defer cancel()
	}
	ticker := time.NewTicker(domPollInterval)
	defer ticker.Stop()
	for {
		var state string
		if err := s.eval(ctx, `document.readyState`, &state); err == nil && state != "loading" {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for DOM ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// WaitNetworkIdle blocks until no request has been in flight for quiet.
func (s *Session) WaitNetworkIdle(ctx context.Context, quiet time.Duration) error {
	runCtx, cancel := s.scoped(ctx)
	defer cancel()
	if err := s.tracker.WaitIdle(runCtx, quiet); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Sleep pauses for d unless ctx ends or the session is closed first.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return fmt.Errorf("session %s closed: %w", s.id, s.ctx.Err())
	}
}

// Close shuts the browser down. Only the first call does any work.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		if s.release != nil {
			err = s.release(ctx)
		}
	})
	return err
}
