package lonet

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lonetwatch/lib/htmlutil"
	"lonetwatch/lib/textutil"
	"lonetwatch/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrMissingElement = fmt.Errorf("expected page element is missing")

type Task struct {
	Name        string
	Description string
	// zero value means the task carries no deadline
	Deadline time.Time
	Link     string
}

type SubjectTasks struct {
	Name  string
	Tasks []Task
}

// Plan is one full subject→tasks snapshot. Subject order follows the
// portal's selection control, task order follows table row order.
type Plan struct {
	Subjects []SubjectTasks
}

const (
	DeadlineLayout = "02.01.2006 15:04"
	// layout reproducing the historic parser, which read the month
	// field as minutes and the minutes field as seconds
	LegacyDeadlineLayout = "02.04.2006 15:05"
)

type CollectOptions struct {
	Username  string
	Password  string
	ClassName string
	// parse deadlines with LegacyDeadlineLayout for compatibility with
	// the original tracker's index contents
	LegacyDeadlineFormat bool
}

func (o CollectOptions) deadlineLayout() string {
	if o.LegacyDeadlineFormat {
		return LegacyDeadlineLayout
	}
	return DeadlineLayout
}

// CollectPlan logs in and walks the fixed page hierarchy
// (class overview → learning plan → per-subject option) into a Plan.
func CollectPlan(ctx context.Context, client *Client, opts CollectOptions) (Plan, error) {
	ctx, span := tracer.Start(ctx, "CollectPlan")
	defer span.End()

	home, err := client.Login(ctx, opts.Username, opts.Password)
	if err != nil {
		span.SetStatus(codes.Error, "login failed")
		return Plan{}, fmt.Errorf("login: %w", err)
	}

	classHref := ""
	home.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if !strings.Contains(a.Text(), opts.ClassName) {
			return true
		}
		href, ok := a.Attr("href")
		if !ok {
			return true
		}
		classHref = href
		return false
	})
	if classHref == "" {
		span.SetStatus(codes.Error, "class link not found")
		return Plan{}, fmt.Errorf("%w: link to class %q", ErrMissingElement, opts.ClassName)
	}
	doc, err := client.Navigate(ctx, classHref)
	if err != nil {
		return Plan{}, fmt.Errorf("open class overview: %w", err)
	}

	planHref, ok := doc.Find("#link_learning_plan").Attr("href")
	if !ok {
		span.SetStatus(codes.Error, "learning plan link not found")
		return Plan{}, fmt.Errorf("%w: learning plan entry point", ErrMissingElement)
	}
	doc, err = client.Navigate(ctx, planHref)
	if err != nil {
		return Plan{}, fmt.Errorf("open learning plan: %w", err)
	}

	options := doc.Find(`select[name="select_mapping"] option`)
	if options.Length() == 0 {
		span.SetStatus(codes.Error, "subject selector not found")
		return Plan{}, fmt.Errorf("%w: subject selection control", ErrMissingElement)
	}

	layout := opts.deadlineLayout()
	plan := Plan{}
	var iterErr error
	options.EachWithBreak(func(_ int, option *goquery.Selection) bool {
		subject := strings.TrimSpace(option.Text())
		href := option.AttrOr("value", "")

		page, err := client.Peek(ctx, href)
		if err != nil {
			iterErr = fmt.Errorf("open subject %q: %w", subject, err)
			return false
		}

		// a subject can legitimately have no tasks yet
		var tasks []Task
		table := page.Find("table.table_list")
		if table.Length() > 0 {
			tasks, err = collectTasks(ctx, client, subject, table.First(), layout)
			if err != nil {
				iterErr = err
				return false
			}
		}

		plan.Subjects = append(plan.Subjects, SubjectTasks{
			Name:  subject,
			Tasks: tasks,
		})
		return true
	})
	if iterErr != nil {
		span.RecordError(iterErr)
		span.SetStatus(codes.Error, "failed to collect subject")
		return Plan{}, iterErr
	}

	return plan, nil
}

// The popup URL sits inside the name cell's onclick handler at fixed
// offsets. Brittle by nature, so out-of-shape handlers degrade to
// "no popup" instead of slicing garbage.
const (
	onclickPrefixLen = 18
	onclickSuffixLen = 3
)

const (
	noDescriptionPlaceholder    = "<no task description found>"
	errorDescriptionPlaceholder = "<error while getting description>"
)

func parseDeadline(layout, s string) (time.Time, error) {
	return time.ParseInLocation(layout, s, timezone.Location)
}

func collectTasks(ctx context.Context, client *Client, subject string, table *goquery.Selection, layout string) ([]Task, error) {
	ctx, span := tracer.Start(ctx, "collectTasks", trace.WithAttributes(
		attribute.String("subject", subject),
	))
	defer span.End()

	var tasks []Task
	var iterErr error
	table.Find("tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		if i == 0 {
			// header row
			return true
		}
		cells := row.Find("td")

		name := strings.TrimSpace(cells.Eq(2).Text())

		var deadline time.Time
		deadlineStr := strings.TrimSpace(cells.Eq(3).Text())
		if deadlineStr != "" {
			var err error
			deadline, err = parseDeadline(layout, deadlineStr)
			if err != nil {
				iterErr = fmt.Errorf("task %q: parse deadline %q: %w", name, deadlineStr, err)
				return false
			}
		}

		onclick := cells.Eq(2).Find("a").AttrOr("onclick", "")
		description, link := taskDetails(ctx, client, onclick)

		tasks = append(tasks, Task{
			Name:        name,
			Description: description,
			Deadline:    deadline,
			Link:        link,
		})
		return true
	})
	if iterErr != nil {
		span.RecordError(iterErr)
		span.SetStatus(codes.Error, "failed to parse task row")
		return nil, iterErr
	}

	span.SetAttributes(attribute.Int("task_count", len(tasks)))
	return tasks, nil
}

// taskDetails resolves the detail popup behind a task row. Failures
// here never abort the scrape, one malformed popup must not take the
// whole cycle down.
func taskDetails(ctx context.Context, client *Client, onclick string) (description, link string) {
	if len(onclick) <= onclickPrefixLen+onclickSuffixLen {
		slog.WarnContext(ctx, "task row has no usable popup handler", "onclick", onclick)
		return noDescriptionPlaceholder, ""
	}
	popupUrl := onclick[onclickPrefixLen : len(onclick)-onclickSuffixLen]

	raw, err := client.PeekRaw(ctx, popupUrl)
	if err != nil {
		slog.WarnContext(ctx, "failed to fetch task popup", "url", popupUrl, "err", err)
		return errorDescriptionPlaceholder, ""
	}

	// the detail link only exists inside a <script> blob
	link, _ = textutil.ExtractBetween(string(raw), `"l1_link":"`, `"`)
	link = strings.ReplaceAll(link, `\/`, `/`)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		slog.WarnContext(ctx, "failed to parse task popup", "url", popupUrl, "err", err)
		return errorDescriptionPlaceholder, link
	}

	// can be both <p> or <div>, we can't rely on the tag
	panel := doc.Find(".panel")
	if panel.Length() == 0 {
		return noDescriptionPlaceholder, link
	}
	return htmlutil.RenderText(panel.First()), link
}
