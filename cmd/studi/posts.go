package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	apiclient "github.com/andrianfaa/Studi-Bareng/pkg/api/client"
)

func newPostsCommand(apiBase *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "posts",
		Short: "List, create and delete posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newPostsListCommand(apiBase))
	cmd.AddCommand(newPostsCreateCommand(apiBase))
	cmd.AddCommand(newPostsDeleteCommand(apiBase))
	return cmd
}

func newPostsListCommand(apiBase *string) *cobra.Command {
	var skip, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live posts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), *apiBase, func(ctx context.Context, token string, client *apiclient.Client) error {
				posts, err := client.ListPosts(ctx, token, skip, limit)
				if err != nil {
					return err
				}
				return printPosts(cmd.OutOrStdout(), posts)
			})
		},
	}
	cmd.Flags().IntVar(&skip, "skip", 0, "Number of posts to skip")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of posts (server default 10)")
	return cmd
}

func newPostsCreateCommand(apiBase *string) *cobra.Command {
	var (
		title, content string
		ttl            time.Duration
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Publish a post",
		RunE: func(cmd *cobra.Command, args []string) error {
			input := apiclient.CreatePostInput{Title: title, Content: content}
			if ttl > 0 {
				expires := time.Now().Add(ttl).UTC()
				input.ExpiresAt = &expires
			}
			return withSession(cmd.Context(), *apiBase, func(ctx context.Context, token string, client *apiclient.Client) error {
				post, err := client.CreatePost(ctx, token, input)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s (expires %s)\n", post.ID, post.ExpiresAt.Local().Format(time.RFC1123))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Post title")
	cmd.Flags().StringVar(&content, "content", "", "Post body")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Lifetime of the post (server default 24h)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func newPostsDeleteCommand(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <post-id>",
		Short: "Delete one of your posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), *apiBase, func(ctx context.Context, token string, client *apiclient.Client) error {
				post, err := client.DeletePost(ctx, token, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "deleted", post.ID)
				return nil
			})
		},
	}
}

func printPosts(out io.Writer, posts []apiclient.Post) error {
	if len(posts) == 0 {
		_, err := fmt.Fprintln(out, "no posts")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAUTHOR\tTITLE\tEXPIRES")
	for _, p := range posts {
		author := p.AuthorID
		if p.Author != nil && p.Author.Name != "" {
			author = p.Author.Name
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, author, p.Title, p.ExpiresAt.Local().Format(time.RFC3339))
	}
	return tw.Flush()
}
