package paginate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// Selectors describe a site's filter-and-paginate UI.
type Selectors struct {
	MenuButton       string `yaml:"menu_button"`
	DepartmentOption string `yaml:"department_option"`
	// DepartmentPattern captures (name, count) from an option label such as
	// "Engineering (12)".
	DepartmentPattern string `yaml:"department_pattern"`
	ClearButton       string `yaml:"clear_button"`
	ApplyButton       string `yaml:"apply_button"`
	ResultCount       string `yaml:"result_count"`
	JobLink           string `yaml:"job_link"`
	NextButton        string `yaml:"next_button"`
}

const defaultDepartmentPattern = `^(.*?)\s*\((\d[\d,]*)\)\s*$`

var (
	ofTotalRe  = regexp.MustCompile(`(?i)of\s+([\d,]+)`)
	firstNumRe = regexp.MustCompile(`[\d,]+`)
)

// ChromeBrowser implements Browser on one chromedp tab.
type ChromeBrowser struct {
	tab    context.Context
	url    string
	sel    Selectors
	deptRe *regexp.Regexp
	step   time.Duration
}

// NewChromeBrowser binds to an already-created tab context. step bounds each
// individual UI action.
func NewChromeBrowser(tab context.Context, url string, sel Selectors, step time.Duration) (*ChromeBrowser, error) {
	if sel.MenuButton == "" || sel.DepartmentOption == "" || sel.JobLink == "" || sel.ResultCount == "" {
		return nil, errors.New("paginate: menu_button, department_option, result_count and job_link selectors are required")
	}
	pattern := sel.DepartmentPattern
	if pattern == "" {
		pattern = defaultDepartmentPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("paginate: department pattern: %w", err)
	}
	if re.NumSubexp() < 2 {
		return nil, errors.New("paginate: department pattern needs name and count groups")
	}
	if step <= 0 {
		step = 5 * time.Second
	}
	return &ChromeBrowser{tab: tab, url: url, sel: sel, deptRe: re, step: step}, nil
}

func (b *ChromeBrowser) run(ctx context.Context, actions ...chromedp.Action) error {
	tctx, cancel := context.WithTimeout(b.tab, b.step)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(tctx, actions...)
}

// Load navigates to the listing URL.
func (b *ChromeBrowser) Load(ctx context.Context) error {
	return b.run(ctx, chromedp.Navigate(b.url), chromedp.WaitReady("body", chromedp.ByQuery))
}

// Reload returns to the unfiltered listing; the paginator re-applies the
// department filter and page position itself.
func (b *ChromeBrowser) Reload(ctx context.Context) error {
	return b.Load(ctx)
}

func (b *ChromeBrowser) OpenMenu(ctx context.Context) error {
	return b.run(ctx,
		chromedp.Click(b.sel.MenuButton, chromedp.ByQuery),
		chromedp.WaitVisible(b.sel.DepartmentOption, chromedp.ByQuery),
	)
}

func (b *ChromeBrowser) Departments(ctx context.Context) ([]Department, error) {
	var labels []string
	js := fmt.Sprintf(`Array.from(document.querySelectorAll(%q)).map(e => e.textContent.trim())`, b.sel.DepartmentOption)
	if err := b.run(ctx, chromedp.Evaluate(js, &labels)); err != nil {
		return nil, err
	}
	out := make([]Department, 0, len(labels))
	for _, l := range labels {
		out = append(out, b.parseDepartment(l))
	}
	return out, nil
}

func (b *ChromeBrowser) parseDepartment(label string) Department {
	label = strings.Join(strings.Fields(label), " ")
	m := b.deptRe.FindStringSubmatch(label)
	if m == nil {
		return Department{Name: label, Count: -1}
	}
	n, _ := strconv.Atoi(strings.ReplaceAll(m[2], ",", ""))
	return Department{Name: strings.TrimSpace(m[1]), Count: n}
}

func (b *ChromeBrowser) ClearFilter(ctx context.Context) error {
	if b.sel.ClearButton == "" {
		return nil
	}
	js := fmt.Sprintf(`(() => { const n = document.querySelector(%q); if (n) { n.click(); } return true; })()`, b.sel.ClearButton)
	var ok bool
	return b.run(ctx, chromedp.Evaluate(js, &ok))
}

func (b *ChromeBrowser) SelectDepartment(ctx context.Context, index int) error {
	js := fmt.Sprintf(`(() => {
		const opts = document.querySelectorAll(%q);
		if (%d >= opts.length) { return false; }
		const o = opts[%d];
		const box = o.querySelector('input[type=checkbox]') || o;
		box.click();
		return true;
	})()`, b.sel.DepartmentOption, index, index)
	var ok bool
	if err := b.run(ctx, chromedp.Evaluate(js, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("department option %d not present", index)
	}
	return nil
}

func (b *ChromeBrowser) ApplyFilter(ctx context.Context) error {
	if b.sel.ApplyButton == "" {
		return nil
	}
	return b.run(ctx, chromedp.Click(b.sel.ApplyButton, chromedp.ByQuery))
}

func (b *ChromeBrowser) ResultCount(ctx context.Context) (int, error) {
	var text string
	if err := b.run(ctx, chromedp.Text(b.sel.ResultCount, &text, chromedp.ByQuery)); err != nil {
		return 0, err
	}
	return parseResultCount(text)
}

// parseResultCount reads "1 - 20 of 137 results" or "137 JOBS FOUND".
func parseResultCount(text string) (int, error) {
	raw := ""
	if m := ofTotalRe.FindStringSubmatch(text); m != nil {
		raw = m[1]
	} else {
		raw = firstNumRe.FindString(text)
	}
	if raw == "" {
		return 0, fmt.Errorf("no count in %q", text)
	}
	return strconv.Atoi(strings.ReplaceAll(raw, ",", ""))
}

func (b *ChromeBrowser) JobLinks(ctx context.Context) ([]string, error) {
	var links []string
	js := fmt.Sprintf(`Array.from(document.querySelectorAll(%q)).map(a => a.href).filter(Boolean)`, b.sel.JobLink)
	if err := b.run(ctx, chromedp.Evaluate(js, &links)); err != nil {
		return nil, err
	}
	return links, nil
}

func (b *ChromeBrowser) HasNext(ctx context.Context) (bool, error) {
	if b.sel.NextButton == "" {
		return false, nil
	}
	var nodes []*cdp.Node
	if err := b.run(ctx, chromedp.Nodes(b.sel.NextButton, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return false, err
	}
	if len(nodes) == 0 {
		return false, nil
	}
	n := nodes[0]
	if _, disabled := n.Attribute("disabled"); disabled {
		return false, nil
	}
	if v, _ := n.Attribute("aria-disabled"); v == "true" {
		return false, nil
	}
	return true, nil
}

func (b *ChromeBrowser) ClickNext(ctx context.Context) error {
	return b.run(ctx, chromedp.Click(b.sel.NextButton, chromedp.ByQuery))
}
