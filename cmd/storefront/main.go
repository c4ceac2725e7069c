// storefront is a command-line shopper for the storefront API.
// The guest cart and the session token persist between runs, so each
// command performs a single operation and composes in scripts.
//
// Commands:
//
//	storefront show [-json]
//	storefront add -product ID [-qty N]
//	storefront update -product ID -qty N
//	storefront remove -product ID
//	storefront clear
//	storefront login -email E -password P [-merge | -discard]
//	storefront register -name N -email E -password P
//	storefront logout
//	storefront merge [-yes]
//	storefront discard
//	storefront profile [-name N]
//	storefront password -current P -new P
//	storefront forgot -email E
//	storefront reset -token T -email E -password P
//
// Examples:
//
//	storefront add -product 60 -qty 2
//	storefront login -email ada@example.com -password "$PW"
//	storefront merge -yes
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"storefront/internal/app"
	"storefront/internal/auth"
	"storefront/internal/config"
	"storefront/internal/logging"
	"storefront/internal/merge"
	"storefront/internal/model"
	"storefront/internal/reconcile"
)

// Global flags (apply to all commands)
var (
	quiet   bool
	noColor bool
	verbose bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

type command struct {
	summary string
	run     func(args []string)
}

var commands = map[string]command{
	"show":     {"Show the active cart", runShow},
	"add":      {"Add a product to the cart", runAdd},
	"update":   {"Set the quantity of a product in the cart", runUpdate},
	"remove":   {"Remove a product from the cart", runRemove},
	"clear":    {"Empty the cart", runClear},
	"login":    {"Sign in", runLogin},
	"register": {"Create an account and sign in", runRegister},
	"logout":   {"Sign out (the guest cart is kept)", runLogout},
	"merge":    {"Merge the guest cart into the account cart", runMerge},
	"discard":  {"Discard the guest cart left over after sign-in", runDiscard},
	"profile":  {"Show or update the signed-in user", runProfile},
	"password": {"Change the account password", runPassword},
	"forgot":   {"Request a password reset link", runForgot},
	"reset":    {"Reset the password with an emailed token", runReset},
}

var commandOrder = []string{
	"show", "add", "update", "remove", "clear",
	"login", "register", "logout", "merge", "discard",
	"profile", "password", "forgot", "reset",
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	name := os.Args[1]
	switch name {
	case "-h", "-help", "--help", "help":
		printUsage()
		return
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}
	cmd.run(os.Args[2:])
}

func printUsage() {
	var b strings.Builder
	for _, name := range commandOrder {
		fmt.Fprintf(&b, "  %-9s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(os.Stderr, `storefront - storefront cart from the command line

Usage:
  storefront <command> [options]

Commands:
%s
Configuration comes from CONFIG_FILE or API_BASE_URL, STORAGE_BACKEND, ...
Logs go to LOG_FILE (default: storefront/cli.log under the user cache dir).

Run 'storefront <command> -h' for command-specific options.
`, b.String())
}

// newFlagSet registers the flags every command shares.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.BoolVar(&quiet, "q", false, "Quiet mode - minimal output")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - debug logging to the log file")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: storefront %s %s\n\nOptions:\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
}

// withApp opens the cart service for one command and closes it afterwards.
func withApp(fn func(ctx context.Context, a *app.App) error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fatal("Loading config: %v", err)
	}

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = defaultLogFile()
	}
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	logger, closeLog := logging.New(logging.Options{Level: level, File: logFile})
	defer closeLog()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		fatal("Starting: %v", err)
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		logger.Error("command failed", slog.String("command", os.Args[1]), slog.String("error", err.Error()))
		closeLog()
		a.Close()
		fatal("%s", describe(err))
	}
}

func defaultLogFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "storefront-cli.log")
	}
	return filepath.Join(dir, "storefront", "cli.log")
}

// =============================================================================
// CART COMMANDS
// =============================================================================

func runShow(args []string) {
	fs := newFlagSet("show", "[options]")
	var asJSON bool
	fs.BoolVar(&asJSON, "json", false, "Print the cart as JSON")
	parse(fs, args)

	withApp(func(ctx context.Context, a *app.App) error {
		view, err := a.View(ctx)
		if err != nil {
			if len(view.Items) == 0 {
				return err
			}
			printWarning("Showing last known cart: %s", describe(err))
		}
		if asJSON {
			data, _ := json.MarshalIndent(view, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		printCart(view)
		return nil
	})
}

func runAdd(args []string) {
	fs := newFlagSet("add", "-product ID [-qty N]")
	var productID int64
	var qty int
	fs.Int64Var(&productID, "product", 0, "Product ID (required)")
	fs.IntVar(&qty, "qty", 1, "Quantity")
	parse(fs, args)

	if productID <= 0 {
		fs.Usage()
		os.Exit(1)
	}

	withApp(func(ctx context.Context, a *app.App) error {
		if err := a.AddItem(ctx, productID, qty); err != nil {
			return err
		}
		printSuccess("Added %d × product %d", qty, productID)
		return showAfter(ctx, a)
	})
}

func runUpdate(args []string) {
	fs := newFlagSet("update", "-product ID -qty N")
	var productID int64
	var qty int
	fs.Int64Var(&productID, "product", 0, "Product ID (required)")
	fs.IntVar(&qty, "qty", -1, "New quantity, 0 removes (required)")
	parse(fs, args)

	if productID <= 0 || qty < 0 {
		fs.Usage()
		os.Exit(1)
	}

	withApp(func(ctx context.Context, a *app.App) error {
		if err := a.UpdateItem(ctx, productID, qty); err != nil {
			return err
		}
		printSuccess("Product %d set to %d", productID, qty)
		return showAfter(ctx, a)
	})
}

func runRemove(args []string) {
	fs := newFlagSet("remove", "-product ID")
	var productID int64
	fs.Int64Var(&productID, "product", 0, "Product ID (required)")
	parse(fs, args)

	if productID <= 0 {
		fs.Usage()
		os.Exit(1)
	}

	withApp(func(ctx context.Context, a *app.App) error {
		if err := a.RemoveItem(ctx, productID); err != nil {
			return err
		}
		printSuccess("Removed product %d", productID)
		return showAfter(ctx, a)
	})
}

func runClear(args []string) {
	fs := newFlagSet("clear", "[options]")
	parse(fs, args)

	withApp(func(ctx context.Context, a *app.App) error {
		if err := a.ClearCart(ctx); err != nil {
			return err
		}
		printSuccess("Cart cleared")
		return nil
	})
}

func showAfter(ctx context.Context, a *app.App) error {
	if quiet {
		return nil
	}
	view, err := a.View(ctx)
	if err != nil {
		printWarning("Could not refresh cart: %s", describe(err))
		return nil
	}
	printCart(view)
	return nil
}

// =============================================================================
// ACCOUNT COMMANDS
// =============================================================================

func runLogin(args []string) {
	fs := newFlagSet("login", "-email E -password P [-merge | -discard]")
	var creds auth.LoginCredentials
	var doMerge, doDiscard bool
	fs.StringVar(&creds.Email, "email", "", "Account email (required)")
	fs.StringVar(&creds.Password, "password", os.Getenv("STOREFRONT_PASSWORD"), "Password (default $STOREFRONT_PASSWORD)")
	fs.BoolVar(&doMerge, "merge", false, "Merge a leftover guest cart without asking")
	fs.BoolVar(&doDiscard, "discard", false, "Discard a leftover guest cart without asking")
	parse(fs, args)

	if doMerge && doDiscard {
		fatal("-merge and -discard are mutually exclusive")
	}

	withApp(func(ctx context.Context, a *app.App) error {
		outcome, err := a.Login(ctx, creds)
		if err != nil {
			return err
		}
		printSignedIn(a)

		if outcome != merge.OutcomeConfirmationRequired {
			return nil
		}
		switch {
		case doMerge:
			return confirmMerge(ctx, a)
		case doDiscard:
			return discardMerge(ctx, a)
		}
		return promptMerge(ctx, a, false)
	})
}

func runRegister(args []string) {
	fs := newFlagSet("register", "-name N -email E -password P [-confirm P]")
	var creds auth.RegisterCredentials
	fs.StringVar(&creds.Name, "name", "", "Display name (required)")
	fs.StringVar(&creds.Email, "email", "", "Account email (required)")
	fs.StringVar(&creds.Password, "password", os.Getenv("STOREFRONT_PASSWORD"), "Password (default $STOREFRONT_PASSWORD)")
	fs.StringVar(&creds.PasswordConfirmation, "confirm", "", "Password confirmation (defaults to -password)")
	parse(fs, args)

	if creds.PasswordConfirmation == "" {
		creds.PasswordConfirmation = creds.Password
	}

	withApp(func(ctx context.Context, a *app.App) error {
		outcome, err := a.Register(ctx, creds)
		if err != nil {
			return err
		}
		printSignedIn(a)

		switch outcome {
		case merge.OutcomeMerged:
			printSuccess("Guest cart moved to your account")
		case merge.OutcomeMergeFailed:
			printWarning("Guest cart could not be moved; it is kept locally. Run 'storefront merge' to retry.")
		}
		return nil
	})
}

func runLogout(args []string) {
	fs := newFlagSet("logout", "[options]")
	parse(fs, args)

	withApp(func(ctx context.Context, a *app.App) error {
		if err := a.Logout(ctx); err != nil {
			return err
		}
		printSuccess("Signed out")
		return nil
	})
}

func runProfile(args []string) {
	fs := newFlagSet("profile", "[-name N]")
	var name string
	fs.StringVar(&name, "name", "", "New display name")
	parse(fs, args)

	withApp(func(ctx context.Context, a *app.App) error {
		var user auth.User
		var err error
		if name != "" {
			user, err = a.Session.UpdateProfile(ctx, auth.UpdateProfileData{Name: name})
		} else {
			user, err = a.CurrentUser(ctx)
		}
		if err != nil {
			return err
		}

		if quiet {
			fmt.Println(user.Email)
			return nil
		}
		fmt.Printf("  %sName:%s  %s\n", colorBold, colorReset, user.Name)
		fmt.Printf("  %sEmail:%s %s", colorBold, colorReset, user.Email)
		if user.EmailVerifiedAt == nil {
			fmt.Printf(" %s(unverified)%s", colorYellow, colorReset)
		}
		fmt.Println()
		return nil
	})
}

func runPassword(args []string) {
	fs := newFlagSet("password", "-current P -new P [-confirm P]")
	var data auth.UpdatePasswordData
	fs.StringVar(&data.CurrentPassword, "current", "", "Current password (required)")
	fs.StringVar(&data.NewPassword, "new", "", "New password (required)")
	fs.StringVar(&data.NewPasswordConfirmation, "confirm", "", "New password confirmation (defaults to -new)")
	parse(fs, args)

	if data.NewPasswordConfirmation == "" {
		data.NewPasswordConfirmation = data.NewPassword
	}

	withApp(func(ctx context.Context, a *app.App) error {
		if err := a.Session.UpdatePassword(ctx, data); err != nil {
			return err
		}
		printSuccess("Password changed")
		return nil
	})
}

func runForgot(args []string) {
	fs := newFlagSet("forgot", "-email E")
	var email string
	fs.StringVar(&email, "email", "", "Account email (required)")
	parse(fs, args)

	withApp(func(ctx context.Context, a *app.App) error {
		msg, err := a.Session.RequestPasswordReset(ctx, email)
		if err != nil {
			return err
		}
		printSuccess("%s", withDefault(msg, "Reset link sent"))
		return nil
	})
}

func runReset(args []string) {
	fs := newFlagSet("reset", "-token T -email E -password P [-confirm P]")
	var data auth.ResetPasswordData
	fs.StringVar(&data.Token, "token", "", "Reset token from the email (required)")
	fs.StringVar(&data.Email, "email", "", "Account email (required)")
	fs.StringVar(&data.Password, "password", "", "New password (required)")
	fs.StringVar(&data.PasswordConfirmation, "confirm", "", "New password confirmation (defaults to -password)")
	parse(fs, args)

	if data.PasswordConfirmation == "" {
		data.PasswordConfirmation = data.Password
	}

	withApp(func(ctx context.Context, a *app.App) error {
		msg, err := a.Session.ResetPassword(ctx, data)
		if err != nil {
			return err
		}
		printSuccess("%s", withDefault(msg, "Password reset"))
		return nil
	})
}

// =============================================================================
// MERGE COMMANDS
// =============================================================================

func runMerge(args []string) {
	fs := newFlagSet("merge", "[-yes]")
	var yes bool
	fs.BoolVar(&yes, "yes", false, "Merge without asking")
	parse(fs, args)

	withApp(func(ctx context.Context, a *app.App) error {
		return promptMerge(ctx, a, yes)
	})
}

func runDiscard(args []string) {
	fs := newFlagSet("discard", "[options]")
	parse(fs, args)

	withApp(func(ctx context.Context, a *app.App) error {
		if _, err := a.MergeStatus(ctx); err != nil {
			return err
		}
		return discardMerge(ctx, a)
	})
}

// promptMerge shows the merge preview and asks before merging.
func promptMerge(ctx context.Context, a *app.App, yes bool) error {
	status, err := a.MergeStatus(ctx)
	if err != nil {
		return err
	}
	printPreview(status.Preview)

	if !yes {
		answer := ask("Merge your guest cart into your account? [y/N/d=discard] ")
		switch answer {
		case "y", "yes":
		case "d", "discard":
			return discardMerge(ctx, a)
		default:
			printInfo("Guest cart kept. Run 'storefront merge' or 'storefront discard' later.")
			return nil
		}
	}
	return confirmMerge(ctx, a)
}

func confirmMerge(ctx context.Context, a *app.App) error {
	if _, err := a.MergeStatus(ctx); err != nil {
		return err
	}
	if err := a.ConfirmMerge(ctx); err != nil {
		printWarning("Merge failed; your guest cart is unchanged. Retry with 'storefront merge'.")
		return err
	}
	printSuccess("Guest cart merged")
	return showAfter(ctx, a)
}

func discardMerge(ctx context.Context, a *app.App) error {
	if err := a.DiscardMerge(ctx); err != nil {
		return err
	}
	printSuccess("Guest cart discarded")
	return nil
}

func ask(prompt string) string {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(line))
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printCart(view model.CartView) {
	if quiet {
		fmt.Println(view.Count)
		return
	}

	owner := "Guest cart"
	if view.IsAuthenticated {
		owner = "Account cart"
	}
	fmt.Printf("%s%s%s\n", colorBold, owner, colorReset)

	if len(view.Items) == 0 {
		fmt.Printf("  %s(empty)%s\n", colorGray, colorReset)
		return
	}
	for _, l := range view.Items {
		fmt.Printf("  %s%6d%s  %-32s %3d × %8s = %s%9s%s\n",
			colorCyan, l.ProductID, colorReset,
			truncate(l.Title, 32), l.Quantity, l.UnitPrice, colorGreen, l.Subtotal, colorReset)
	}
	fmt.Printf("  %sItems: %d   Total: %s%s\n", colorBold, view.Count, view.Total, colorReset)
}

func printPreview(p *reconcile.MergePreview) {
	if quiet || p == nil {
		return
	}
	fmt.Printf("%sMerging will:%s\n", colorBold, colorReset)
	for _, it := range p.ToAdd {
		fmt.Printf("  %s+%s add %d × %s\n", colorGreen, colorReset, it.Quantity, titleOr(it.Title, it.ProductID))
	}
	for _, it := range p.ToIncrement {
		fmt.Printf("  %s↑%s %s: %d → %d\n", colorYellow, colorReset, titleOr(it.Title, it.ProductID), it.OldQuantity, it.NewQuantity)
	}
	if p.Untouched > 0 {
		fmt.Printf("  %s%d account line(s) stay as they are%s\n", colorGray, p.Untouched, colorReset)
	}
	if !p.ServerKnown {
		printWarning("Account cart could not be loaded; products already in it will be added on top.")
	}
}

func printSignedIn(a *app.App) {
	if user, ok := a.Session.User(); ok {
		printSuccess("Signed in as %s", user.Email)
		return
	}
	printSuccess("Signed in")
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

// describe renders an error for the terminal, expanding per-field messages.
func describe(err error) string {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return err.Error()
	}
	if len(apiErr.Fields) == 0 {
		return apiErr.Message
	}
	var b strings.Builder
	b.WriteString(apiErr.Message)
	for field, msgs := range apiErr.Fields {
		fmt.Fprintf(&b, "\n    %s: %s", field, strings.Join(msgs, "; "))
	}
	return b.String()
}

func titleOr(title string, productID int64) string {
	if title != "" {
		return title
	}
	return fmt.Sprintf("product %d", productID)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func withDefault(val, defaultVal string) string {
	if val == "" {
		return defaultVal
	}
	return val
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
