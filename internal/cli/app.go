// Package cli is the application shell: it bootstraps the session once,
// then dispatches a single command against the resulting auth state.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"dailypost/client/internal/api"
	"dailypost/client/internal/config"
	"dailypost/client/internal/service"
	"dailypost/client/internal/session"
)

var ErrNotLoggedIn = errors.New("not logged in, run 'dailypost login' first")

type App struct {
	cfg   *config.Config
	sess  *session.Session
	keep  *session.Keepalive
	posts *service.PostService
	users *service.UserService
	log   zerolog.Logger
	out   io.Writer
}

func New(cfg *config.Config, sess *session.Session, keep *session.Keepalive, posts *service.PostService, users *service.UserService, log zerolog.Logger, out io.Writer) *App {
	return &App{
		cfg:   cfg,
		sess:  sess,
		keep:  keep,
		posts: posts,
		users: users,
		log:   log,
		out:   out,
	}
}

// Run bootstraps the session, then dispatches. No command executes
// before CheckAuth has resolved.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.usage()
		return errors.New("command required")
	}

	fmt.Fprintln(a.out, "checking session...")
	state := a.sess.CheckAuth(ctx)
	if state.IsAuth {
		a.log.Debug().Str("username", state.User.Username).Msg("session restored")
	}

	command, rest := args[0], args[1:]
	switch command {
	case "login":
		return a.login(ctx, rest)
	case "register":
		return a.register(ctx, rest)
	case "logout":
		return a.logout()
	case "whoami":
		return a.whoami(ctx)
	case "posts":
		return a.listPosts(ctx)
	case "post":
		return a.showPost(ctx, rest)
	case "user-posts":
		return a.listUserPosts(ctx, rest)
	case "users":
		return a.listUsers(ctx)
	case "set-username":
		return a.setUsername(ctx, rest)
	case "create-post":
		return a.createPost(ctx, rest)
	case "watch":
		return a.watch(ctx)
	default:
		a.usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *App) usage() {
	fmt.Fprintln(a.out, `usage: dailypost <command> [flags]

commands:
  login -u <username> -p <password>
  register -u <username> -p <password> [-n <nickname>]
  logout
  whoami
  posts
  post <id>
  user-posts <user-id>
  users
  set-username <name>
  create-post -title <t> -content <c> [-image <path>]
  watch`)
}

func (a *App) requireAuth() error {
	if !a.sess.Snapshot().IsAuth {
		return ErrNotLoggedIn
	}
	return nil
}

func (a *App) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *password == "" {
		return errors.New("username and password required")
	}

	state := a.sess.Login(ctx, *username, *password)
	if !state.IsAuth {
		return errors.New(state.Err)
	}
	fmt.Fprintf(a.out, "logged in as %s\n", state.User.Username)
	return nil
}

func (a *App) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password")
	nickname := fs.String("n", "", "nickname")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *password == "" {
		return errors.New("username and password required")
	}

	state := a.sess.Register(ctx, *username, *password, *nickname)
	if !state.IsAuth {
		return errors.New(state.Err)
	}
	fmt.Fprintf(a.out, "registered as %s\n", state.User.Username)
	return nil
}

func (a *App) logout() error {
	a.sess.Logout()
	fmt.Fprintln(a.out, "logged out")
	return nil
}

func (a *App) whoami(ctx context.Context) error {
	if err := a.requireAuth(); err != nil {
		return err
	}

	user, err := a.users.Profile(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (id %d, %d posts)\n", user.Username, user.ID, user.PostsCount)
	if user.Nickname != "" {
		fmt.Fprintf(a.out, "nickname: %s\n", user.Nickname)
	}
	return nil
}

func (a *App) listPosts(ctx context.Context) error {
	if err := a.requireAuth(); err != nil {
		return err
	}

	posts, err := a.posts.List(ctx)
	if err != nil {
		return err
	}
	a.renderPosts(posts)
	return nil
}

func (a *App) showPost(ctx context.Context, args []string) error {
	if err := a.requireAuth(); err != nil {
		return err
	}
	if len(args) != 1 {
		return errors.New("post id required")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("parse post id: %w", err)
	}

	post, err := a.posts.Get(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "#%d %s\n\n%s\n", post.ID, post.Title, post.Content)
	if post.ImageURL != "" {
		fmt.Fprintf(a.out, "\nimage: %s\n", post.ImageURL)
	}
	if post.Author != nil {
		fmt.Fprintf(a.out, "by %s\n", post.Author.Username)
	}
	return nil
}

func (a *App) listUserPosts(ctx context.Context, args []string) error {
	if err := a.requireAuth(); err != nil {
		return err
	}
	if len(args) != 1 {
		return errors.New("user id required")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("parse user id: %w", err)
	}

	posts, err := a.posts.ListByUser(ctx, id)
	if err != nil {
		return err
	}
	a.renderPosts(posts)
	return nil
}

func (a *App) listUsers(ctx context.Context) error {
	if err := a.requireAuth(); err != nil {
		return err
	}

	users, err := a.users.List(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		fmt.Fprintf(a.out, "%d\t%s\t%d posts\n", user.ID, user.Username, user.PostsCount)
	}
	return nil
}

func (a *App) setUsername(ctx context.Context, args []string) error {
	if err := a.requireAuth(); err != nil {
		return err
	}
	if len(args) != 1 || args[0] == "" {
		return errors.New("new username required")
	}

	user, err := a.users.UpdateProfile(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "username changed to %s\n", user.Username)
	return nil
}

func (a *App) createPost(ctx context.Context, args []string) error {
	if err := a.requireAuth(); err != nil {
		return err
	}

	fs := flag.NewFlagSet("create-post", flag.ContinueOnError)
	title := fs.String("title", "", "post title")
	content := fs.String("content", "", "post content")
	image := fs.String("image", "", "path to an image to attach")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *title == "" || *content == "" {
		return errors.New("title and content required")
	}

	imageURL := ""
	if *image != "" {
		file, err := os.Open(*image)
		if err != nil {
			return fmt.Errorf("open image: %w", err)
		}
		defer file.Close()

		result, err := a.users.Upload(ctx, filepath.Base(*image), file)
		if err != nil {
			return fmt.Errorf("upload image: %w", err)
		}
		imageURL = result.URL
	}

	user := a.sess.Snapshot().User
	post, err := a.posts.Create(ctx, service.CreatePostInput{
		Title:    *title,
		Content:  *content,
		ImageURL: imageURL,
		UserID:   user.ID,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created post #%d\n", post.ID)
	return nil
}

// watch keeps the session alive in the background and prints new posts
// as they appear, until interrupted.
func (a *App) watch(ctx context.Context) error {
	if err := a.requireAuth(); err != nil {
		return err
	}

	if err := a.keep.Start(a.cfg.Keepalive.Interval); err != nil {
		return err
	}
	defer a.keep.Stop()

	var lastID int64
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		posts, err := a.posts.List(ctx)
		if err != nil {
			a.log.Warn().Err(err).Msg("poll posts failed")
		}
		for _, post := range posts {
			if post.ID > lastID {
				author := ""
				if post.Author != nil {
					author = " by " + post.Author.Username
				}
				fmt.Fprintf(a.out, "#%d %s%s\n", post.ID, post.Title, author)
				lastID = post.ID
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *App) renderPosts(posts []api.Post) {
	if len(posts) == 0 {
		fmt.Fprintln(a.out, "no posts")
		return
	}
	for _, post := range posts {
		author := ""
		if post.Author != nil {
			author = "\t" + post.Author.Username
		}
		fmt.Fprintf(a.out, "%d\t%s%s\n", post.ID, post.Title, author)
	}
}
