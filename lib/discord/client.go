package discord

import (
	"context"
	"fmt"
	"time"

	"lonetwatch/lib/restyutil"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("lonetwatch.discord")

const apiBaseUrl = "https://discord.com/api/v10"

// Client is the REST half of the Discord connection, enough to post
// messages and identify the bot user.
type Client struct {
	Http  *resty.Client
	token string
}

type ClientOptions struct {
	Token            string
	InstrumentOutput restyutil.InstrumentOutput
}

func NewClient(opts ClientOptions) *Client {
	client := resty.New()
	client.SetBaseURL(apiBaseUrl)
	client.SetHeader("authorization", fmt.Sprintf("Bot %s", opts.Token))
	client.SetHeader("user-agent", "DiscordBot (lonetwatch, 1.0)")
	client.SetTimeout(time.Second * 30)

	restyutil.InstrumentClient(client, tracer, opts.InstrumentOutput)

	return &Client{
		Http:  client,
		token: opts.Token,
	}
}

type createMessageRequest struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

func (c *Client) SendMessage(ctx context.Context, channelId, content string, embeds ...Embed) error {
	res, err := c.Http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(createMessageRequest{
			Content: content,
			Embeds:  embeds,
		}).
		Post(fmt.Sprintf("/channels/%s/messages", channelId))
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("send message: %s: %s", res.Status(), res.String())
	}
	return nil
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var user User
	res, err := c.Http.R().
		SetContext(ctx).
		SetResult(&user).
		Get("/users/@me")
	if err != nil {
		return User{}, err
	}
	if res.IsError() {
		return User{}, fmt.Errorf("get current user: %s: %s", res.Status(), res.String())
	}
	return user, nil
}
