package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/microcosm-cc/bluemonday"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/juiceqa/puppeteer-jquery/internal/fetch"
	"github.com/juiceqa/puppeteer-jquery/internal/jquery"
	"github.com/juiceqa/puppeteer-jquery/internal/library"
	"github.com/juiceqa/puppeteer-jquery/internal/page/chrome"
	"github.com/juiceqa/puppeteer-jquery/internal/page/sandbox"
	"github.com/juiceqa/puppeteer-jquery/internal/script"
)

type runFlags struct {
	html     string
	url      string
	browser  bool
	output   string
	sanitize bool
}

func newRunCmd(c *cli) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run a query script against a page",
		Long: `Runs a YAML, TOML or JSON query script against an HTML file or a URL.

By default the page is evaluated in-process. With --browser it is loaded in
Chrome (BROWSER_URL connects to a running instance).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVar(&f.html, "html", "", "HTML file to query")
	cmd.Flags().StringVar(&f.url, "url", "", "URL to query")
	cmd.Flags().BoolVar(&f.browser, "browser", false, "Evaluate in Chrome instead of the sandbox")
	cmd.Flags().StringVarP(&f.output, "output", "o", "json", "Output format: json or yaml")
	cmd.Flags().BoolVar(&f.sanitize, "sanitize", false, "Sanitize element markup")
	cmd.MarkFlagsMutuallyExclusive("html", "url")
	cmd.MarkFlagsOneRequired("html", "url")
	return cmd
}

func (c *cli) run(cmd *cobra.Command, path string, f runFlags) error {
	format := script.Format(f.output)
	if format != script.FormatJSON && format != script.FormatYAML {
		return fmt.Errorf("unsupported output %q", f.output)
	}
	s, err := script.ParseFile(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	defer cancel()

	fetcher := fetch.New(fetch.Options{
		Timeout:   c.cfg.Fetch.Timeout,
		Retries:   c.cfg.Fetch.Retries,
		UserAgent: c.cfg.Fetch.UserAgent,
		RateLimit: c.cfg.Fetch.RateLimit,
		Logger:    c.logger.Logger,
	})
	fallback := library.Sandbox()
	if f.browser {
		fallback = library.Default()
	}
	opts := jquery.Options{
		Library: library.New(c.cfg.Library.Path, c.cfg.Library.URL, fetcher, fallback),
		Logger:  c.logger.Logger,
	}
	var ropts script.Options
	if f.sanitize {
		ropts.Sanitize = bluemonday.UGCPolicy().Sanitize
	}

	var res *script.Result
	if f.browser {
		res, err = c.runBrowser(ctx, s, f, opts, ropts)
	} else {
		res, err = c.runSandbox(ctx, s, f, fetcher, opts, ropts)
	}
	if err != nil {
		return err
	}

	out, err := script.Encode(res, format)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func (c *cli) runSandbox(ctx context.Context, s *script.Script, f runFlags, fetcher *fetch.Client, opts jquery.Options, ropts script.Options) (*script.Result, error) {
	markup, err := c.markup(ctx, f, fetcher)
	if err != nil {
		return nil, err
	}

	page := sandbox.New(sandbox.Config{
		Timeout:       c.cfg.Sandbox.Timeout,
		EnableConsole: true,
		Logger:        c.logger.Logger,
	})
	defer page.Close()
	if err := page.Load(markup); err != nil {
		return nil, fmt.Errorf("load page: %w", err)
	}

	res, err := script.Run(ctx, jquery.NewBridge(page, opts), s, ropts)
	for _, entry := range page.Console() {
		c.logger.Debug("console", zap.String("level", entry.Level), zap.String("message", entry.Message))
	}
	return res, err
}

func (c *cli) markup(ctx context.Context, f runFlags, fetcher *fetch.Client) (string, error) {
	if f.html != "" {
		data, err := os.ReadFile(f.html)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	doc, err := fetcher.Get(ctx, f.url)
	if err != nil {
		return "", err
	}
	c.logger.Debug("fetched", zap.String("url", doc.URL), zap.String("charset", doc.Charset))
	return doc.Text, nil
}

func (c *cli) runBrowser(ctx context.Context, s *script.Script, f runFlags, opts jquery.Options, ropts script.Options) (res *script.Result, err error) {
	browser, err := chrome.Launch(ctx, chrome.Options{
		URL:      c.cfg.Browser.URL,
		Bin:      c.cfg.Browser.Bin,
		Headless: c.cfg.Browser.Headless,
		Logger:   c.logger.Logger,
		Bridge:   opts,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, browser.Close())
	}()

	page, err := browser.NewPage(ctx, f.url)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	if f.html != "" {
		data, err := os.ReadFile(f.html)
		if err != nil {
			return nil, err
		}
		if err := page.SetContent(ctx, string(data)); err != nil {
			return nil, fmt.Errorf("set content: %w", err)
		}
	}
	return script.Run(ctx, page.Bridge(), s, ropts)
}
