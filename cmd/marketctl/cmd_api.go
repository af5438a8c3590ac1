package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"xhsmarket/internal/service/transaction"
	"xhsmarket/pkg/client"
)

func newArtworksCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artworks",
		Short: "Browse and like gallery artworks",
	}

	var q client.ArtworkQuery
	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List artworks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := g.context(cmd)
			defer cancel()
			c, done, err := g.client(ctx)
			if err != nil {
				return err
			}
			defer done()

			page, err := c.ListArtworks(ctx, q)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), page)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tARTIST\tLIKES\tPRICE\tAI")
			for _, a := range page.Items {
				price := "-"
				if a.ForSale {
					price = transaction.FormatAmount(a.Price)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n",
					a.ID, a.Title, a.Artist, humanize.Comma(int64(a.Likes)), price, a.IsAI)
			}
			fmt.Fprintf(tw, "\n%d of %d\n", len(page.Items), page.Total)
			return tw.Flush()
		},
	}
	lf := list.Flags()
	lf.StringVar(&q.Category, "category", "", "Filter by category")
	lf.StringVarP(&q.Search, "query", "q", "", "Search title, artist and tags")
	lf.StringVar(&q.AI, "ai", "", "Filter by origin: ai or human")
	lf.StringVar(&q.ArtistID, "artist", "", "Filter by artist id")
	lf.StringVar(&q.Sort, "sort", "", "Sort by newest, likes or views")
	lf.IntVar(&q.Limit, "limit", 0, "Page size")
	lf.IntVar(&q.Offset, "offset", 0, "Page offset")
	lf.BoolVar(&asJSON, "json", false, "Print JSON")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one artwork",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.context(cmd)
			defer cancel()
			c, done, err := g.client(ctx)
			if err != nil {
				return err
			}
			defer done()

			a, err := c.GetArtwork(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), a)
		},
	}

	like := &cobra.Command{
		Use:   "like <id>",
		Short: "Toggle your like on an artwork (needs --email or --token)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.context(cmd)
			defer cancel()
			c, done, err := g.client(ctx)
			if err != nil {
				return err
			}
			defer done()

			s, err := c.ToggleLike(ctx, args[0])
			if err != nil {
				return err
			}
			verb := "unliked"
			if s.Liked {
				verb = "liked"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d likes)\n", verb, args[0], s.Likes)
			return nil
		},
	}

	cmd.AddCommand(list, get, like)
	return cmd
}

func newProjectsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Browse and post commission projects",
	}

	var q client.ProjectQuery
	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := g.context(cmd)
			defer cancel()
			c, done, err := g.client(ctx)
			if err != nil {
				return err
			}
			defer done()

			page, err := c.ListProjects(ctx, q)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tBUDGET\tDEADLINE\tAPPLICANTS")
			for _, p := range page.Items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s - %s\t%s\t%d\n",
					p.ID, p.Title, p.Status,
					transaction.FormatAmount(p.BudgetMin), transaction.FormatAmount(p.BudgetMax),
					humanize.Time(p.Deadline), len(p.Applicants))
			}
			fmt.Fprintf(tw, "\n%d of %d\n", len(page.Items), page.Total)
			return tw.Flush()
		},
	}
	lf := list.Flags()
	lf.StringVar(&q.Status, "status", "", "Filter by status")
	lf.StringVar(&q.Category, "category", "", "Filter by category")
	lf.StringVarP(&q.Search, "query", "q", "", "Search title and description")
	lf.StringVar(&q.ClientID, "client", "", "Filter by client id")
	lf.StringVar(&q.Sort, "sort", "", "Sort by newest, budget or deadline")
	lf.IntVar(&q.Limit, "limit", 0, "Page size")
	lf.IntVar(&q.Offset, "offset", 0, "Page offset")

	var in client.NewProject
	var tags string
	var due time.Duration
	create := &cobra.Command{
		Use:   "create <title>",
		Short: "Post a project (needs --email or --token)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.context(cmd)
			defer cancel()
			c, done, err := g.client(ctx)
			if err != nil {
				return err
			}
			defer done()

			in.Title = args[0]
			in.Deadline = time.Now().Add(due).UTC()
			if tags != "" {
				in.Tags = strings.Split(tags, ",")
			}
			p, err := c.CreateProject(ctx, in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
	cf := create.Flags()
	cf.StringVar(&in.Description, "description", "", "Project brief")
	cf.StringVar(&in.Category, "category", "", "Category")
	cf.StringVar(&tags, "tags", "", "Comma-separated tags")
	cf.Int64Var(&in.BudgetMin, "budget-min", 0, "Minimum budget in fen")
	cf.Int64Var(&in.BudgetMax, "budget-max", 0, "Maximum budget in fen")
	cf.DurationVar(&due, "due", 14*24*time.Hour, "Deadline from now")

	cmd.AddCommand(list, create)
	return cmd
}

func newAICmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ai",
		Short: "AI image generation",
	}

	var req client.ImageRequest
	generate := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate an image (needs --email or --token)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.context(cmd)
			defer cancel()
			c, done, err := g.client(ctx)
			if err != nil {
				return err
			}
			defer done()

			req.Prompt = strings.Join(args, " ")
			img, err := c.GenerateImage(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), img)
		},
	}
	generate.Flags().StringVar(&req.Style, "style", "", "Style hint")
	generate.Flags().StringVar(&req.AspectRatio, "aspect", "1:1", "Aspect ratio, e.g. 16:9")

	cmd.AddCommand(generate)
	return cmd
}
