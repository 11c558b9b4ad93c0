package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blues/tcf/internal/errs"
	"github.com/blues/tcf/internal/model"
	"github.com/blues/tcf/internal/money"
	"github.com/blues/tcf/internal/view"
)

// withApp 初始化依赖后执行 fn，结束时释放
func withApp(ctx context.Context, globals *Globals, fn func(app *App) error) error {
	app, err := NewApp(ctx, globals)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

type CampaignsCmd struct {
	Owner   string `help:"Only list campaigns created by this address."`
	Donator string `help:"Only list campaigns funded by this address."`
	Query   string `short:"q" help:"Keep campaigns whose title, description or category contains this keyword."`
}

func (cmd *CampaignsCmd) Run(env *Environment, globals *Globals, ctx context.Context) error {
	return withApp(ctx, globals, func(app *App) error {
		if err := app.Service.Refresh(ctx); err != nil {
			return err
		}

		var campaigns []model.Campaign
		switch {
		case cmd.Owner != "":
			campaigns = app.Service.CampaignsByOwner(cmd.Owner)
		case cmd.Donator != "":
			campaigns = app.Service.CampaignsFundedBy(cmd.Donator)
		default:
			campaigns = app.Service.Campaigns()
		}
		if cmd.Query != "" {
			campaigns = view.Search(campaigns, cmd.Query)
		}

		return printJSON(env.Stdout, campaigns)
	})
}

type ShowCmd struct {
	ID     int64  `arg:"" help:"The campaign id."`
	Viewer string `help:"Address to render the campaign for. Defaults to the configured signer."`
}

func (cmd *ShowCmd) Run(env *Environment, globals *Globals, ctx context.Context) error {
	return withApp(ctx, globals, func(app *App) error {
		viewer := cmd.Viewer
		if viewer == "" {
			viewer = app.Service.Sender()
		}

		details, err := app.Service.Details(ctx, cmd.ID, viewer)
		if err != nil {
			return err
		}
		return printJSON(env.Stdout, details)
	})
}

type QuoteCmd struct {
	ID     int64  `arg:"" help:"The campaign id."`
	Amount string `arg:"" help:"Number of tokens to buy, e.g. 250 or 0.5."`
}

func (cmd *QuoteCmd) Run(env *Environment, globals *Globals, ctx context.Context) error {
	return withApp(ctx, globals, func(app *App) error {
		quote, err := app.Service.Quote(ctx, cmd.ID, cmd.Amount)
		if err != nil {
			return err
		}
		return printJSON(env.Stdout, quote)
	})
}

type CreateCmd struct {
	Title       string `required:"" help:"Campaign title."`
	Description string `help:"Campaign description."`
	Target      string `required:"" help:"Funding target in ether, e.g. 10 or 2.5."`
	Deadline    string `required:"" help:"Deadline as YYYY-MM-DD (midnight UTC) or RFC3339."`
	Category    string `help:"Campaign category."`
	Image       string `help:"Image URL."`
	Tokens      string `help:"Tokens offered for sale. Defaults to 10000."`
	Owner       string `help:"Owner address. Defaults to the configured signer."`
}

func (cmd *CreateCmd) Run(env *Environment, globals *Globals, ctx context.Context) error {
	deadline, err := parseDeadline(cmd.Deadline)
	if err != nil {
		return err
	}

	req := &model.CreateCampaignRequest{
		Owner:         cmd.Owner,
		Title:         cmd.Title,
		Description:   cmd.Description,
		Target:        cmd.Target,
		Deadline:      deadline,
		Category:      cmd.Category,
		Image:         cmd.Image,
		TokensForSale: cmd.Tokens,
	}

	return withApp(ctx, globals, func(app *App) error {
		result, err := app.Service.Create(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(env.Stdout, result)
	})
}

type DonateCmd struct {
	ID     int64  `arg:"" help:"The campaign id."`
	Amount string `arg:"" help:"Number of tokens to buy."`
}

func (cmd *DonateCmd) Run(env *Environment, globals *Globals, ctx context.Context) error {
	return withApp(ctx, globals, func(app *App) error {
		result, err := app.Service.Donate(ctx, cmd.ID, cmd.Amount)
		if err != nil {
			return err
		}
		return printJSON(env.Stdout, result)
	})
}

type RefundCmd struct {
	ID int64 `arg:"" help:"The campaign id."`
}

func (cmd *RefundCmd) Run(env *Environment, globals *Globals, ctx context.Context) error {
	return withApp(ctx, globals, func(app *App) error {
		result, err := app.Service.Refund(ctx, cmd.ID)
		if err != nil {
			return err
		}
		return printJSON(env.Stdout, result)
	})
}

type EndCmd struct {
	ID int64 `arg:"" help:"The campaign id."`
}

func (cmd *EndCmd) Run(env *Environment, globals *Globals, ctx context.Context) error {
	return withApp(ctx, globals, func(app *App) error {
		result, err := app.Service.End(ctx, cmd.ID)
		if err != nil {
			return err
		}
		return printJSON(env.Stdout, result)
	})
}

type WithdrawCmd struct {
	ID int64 `arg:"" help:"The campaign id."`
}

func (cmd *WithdrawCmd) Run(env *Environment, globals *Globals, ctx context.Context) error {
	return withApp(ctx, globals, func(app *App) error {
		result, err := app.Service.Withdraw(ctx, cmd.ID)
		if err != nil {
			return err
		}
		return printJSON(env.Stdout, result)
	})
}

type MintCmd struct {
	Amount string `arg:"" help:"Number of tokens to mint."`
	To     string `help:"Recipient address. Defaults to the configured signer."`
}

func (cmd *MintCmd) Run(env *Environment, globals *Globals, ctx context.Context) error {
	amount, err := money.ParseUnits(cmd.Amount)
	if err != nil || amount.Sign() <= 0 {
		return errs.Action("mint", fmt.Errorf("%w: %q", errs.ErrInvalidAmount, cmd.Amount))
	}

	return withApp(ctx, globals, func(app *App) error {
		to := cmd.To
		if to == "" {
			to = app.Service.Sender()
		}

		submission, err := app.Repo.SubmitMint(ctx, to, amount)
		if err != nil {
			return errs.Action("mint", err)
		}
		return printJSON(env.Stdout, submission)
	})
}

type TransactionsCmd struct {
	Campaign int64  `default:"-1" help:"Only list transactions of this campaign."`
	Sender   string `help:"Only list transactions sent by this address."`
	Limit    int    `default:"20" help:"Maximum number of records."`
}

func (cmd *TransactionsCmd) Run(env *Environment, globals *Globals, ctx context.Context) error {
	return withApp(ctx, globals, func(app *App) error {
		records, _, err := app.TxLogic.GetTxRecords(cmd.Campaign, cmd.Sender, 1, cmd.Limit)
		if err != nil {
			return err
		}
		return printJSON(env.Stdout, records)
	})
}

// parseDeadline 支持日期（UTC 零点）或 RFC3339 时间
func parseDeadline(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid deadline %q", errs.ErrInvalidCampaign, s)
	}
	return t.UTC(), nil
}
