package lonet

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"time"

	"lonetwatch/lib/restyutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lonetwatch.scrapers.lonet")

var ErrNoSessionId = fmt.Errorf("login page yielded no session id")

// Client is an authenticated lo-net2 session. It is a stateful,
// sequential resource: it carries one current location cursor and must
// not be shared across concurrent callers.
type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client
	Sid     string

	current *url.URL
}

type ClientOptions struct {
	BaseUrl string
	// optional destination for full request/response transcripts
	InstrumentOutput restyutil.InstrumentOutput
}

func NewClient(opts ClientOptions) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetHeader("origin", opts.BaseUrl)
	client.SetTimeout(time.Second * 20)

	restyutil.InstrumentClient(client, tracer, opts.InstrumentOutput)

	return &Client{
		BaseUrl: baseUrl,
		Http:    client,
	}, nil
}

var sidRegex = regexp.MustCompile(`sid=(\d+)`)

const loginPath = "/wws/100001.php"

// Login authenticates the session and returns the landing page the
// portal redirects to, which becomes the current location.
func (c *Client) Login(ctx context.Context, username, password string) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get(loginPath)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch login page")
		return nil, err
	}

	groups := sidRegex.FindStringSubmatch(res.String())
	if groups == nil {
		span.SetStatus(codes.Error, ErrNoSessionId.Error())
		return nil, ErrNoSessionId
	}
	c.Sid = groups[1]

	res, err = c.Http.R().
		SetContext(ctx).
		SetMultipartFormData(map[string]string{
			"login_nojs":     "",
			"login_login":    username,
			"login_password": password,
			"login_submit":   "Einloggen",
			"language":       "2",
		}).
		Post(loginPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return nil, err
	}

	// the post-redirect URL anchors all relative navigation afterwards
	c.current = res.RawResponse.Request.URL

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse landing page html")
		return nil, err
	}
	return doc, nil
}

// Location reports the session's current location cursor.
func (c *Client) Location() *url.URL {
	return c.current
}

func (c *Client) resolve(href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	base := c.current
	if base == nil {
		base = c.BaseUrl
	}
	return base.ResolveReference(ref).String(), nil
}

func (c *Client) fetch(ctx context.Context, href string) (*resty.Response, error) {
	target, err := c.resolve(href)
	if err != nil {
		return nil, err
	}
	return c.Http.R().
		SetContext(ctx).
		Get(target)
}

// Navigate fetches href relative to the current location and moves the
// cursor to wherever the response ended up.
func (c *Client) Navigate(ctx context.Context, href string) (*goquery.Document, error) {
	res, err := c.fetch(ctx, href)
	if err != nil {
		return nil, err
	}
	c.current = res.RawResponse.Request.URL
	return goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
}

// Peek fetches href without touching the cursor, used for transient
// detail lookups so later navigations behave as if the peek never
// happened.
func (c *Client) Peek(ctx context.Context, href string) (*goquery.Document, error) {
	res, err := c.fetch(ctx, href)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
}

// PeekRaw is Peek without the html parsing.
func (c *Client) PeekRaw(ctx context.Context, href string) ([]byte, error) {
	res, err := c.fetch(ctx, href)
	if err != nil {
		return nil, err
	}
	return res.Body(), nil
}
