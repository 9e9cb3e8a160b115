// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// auth_cmd.go - login, signup, logout and status command handlers.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tutordeck/tutordeck-tui/internal/api"
	"github.com/tutordeck/tutordeck-tui/internal/auth"
)

// authTimeout bounds the interactive auth round trips.
const authTimeout = 30 * time.Second

// HandleLogin signs in and stores the access token in the credential store.
func HandleLogin(args Args) int {
	env, err := LoadEnv()
	if err != nil {
		printError("tutordeck: %v", err)
		return 1
	}

	email, err := readLine("Email: ")
	if err != nil {
		printError("tutordeck: read email: %v", err)
		return 1
	}
	password, err := readPassword("Password: ")
	if err != nil {
		printError("tutordeck: read password: %v", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()

	var resp *api.AuthResponse
	if args.Instructor {
		resp, err = env.Client.InstructorLogin(ctx, email, password)
	} else {
		resp, err = env.Client.StudentLogin(ctx, email, password)
	}
	if err != nil {
		printError("tutordeck: login failed: %v", err)
		return 1
	}

	// Instructor accounts can carry a TOTP second factor. The code is
	// checked against the locally provisioned secret before the token
	// is persisted.
	if args.Instructor && resp.Instructor != nil && resp.Instructor.TOTPEnabled {
		code, err := readLine("One-time code: ")
		if err != nil {
			printError("tutordeck: read code: %v", err)
			return 1
		}
		secret := strings.TrimSpace(os.Getenv("TUTORDECK_TOTP_SECRET"))
		if err := auth.ValidateTOTP(code, secret); err != nil {
			printError("tutordeck: %v", err)
			return 1
		}
	}

	if err := env.Creds.Set(resp.AccessToken); err != nil {
		printError("tutordeck: store token: %v", err)
		return 1
	}

	name := email
	switch {
	case resp.Student != nil:
		name = resp.Student.Name
	case resp.Instructor != nil:
		name = resp.Instructor.Name
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("Signed in as %s", name)))
	return 0
}

// HandleSignup creates an account and stores the returned access token.
func HandleSignup(args Args) int {
	env, err := LoadEnv()
	if err != nil {
		printError("tutordeck: %v", err)
		return 1
	}

	name, err := readLine("Name: ")
	if err != nil {
		printError("tutordeck: read name: %v", err)
		return 1
	}
	email, err := readLine("Email: ")
	if err != nil {
		printError("tutordeck: read email: %v", err)
		return 1
	}
	password, err := readPassword("Password: ")
	if err != nil {
		printError("tutordeck: read password: %v", err)
		return 1
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		printError("tutordeck: read password: %v", err)
		return 1
	}
	if password != confirm {
		printError("tutordeck: passwords do not match")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()

	var resp *api.AuthResponse
	if args.Instructor {
		resp, err = env.Client.InstructorSignup(ctx, name, email, password)
	} else {
		resp, err = env.Client.StudentSignup(ctx, name, email, password)
	}
	if err != nil {
		printError("tutordeck: signup failed: %v", err)
		return 1
	}

	if resp.AccessToken != "" {
		if err := env.Creds.Set(resp.AccessToken); err != nil {
			printError("tutordeck: store token: %v", err)
			return 1
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("Account created, signed in as %s", name)))
	} else {
		fmt.Println(successStyle.Render("Account created. Run 'tutordeck login' to sign in."))
	}
	return 0
}

// HandleLogout clears the stored access token.
func HandleLogout(args Args) int {
	env, err := LoadEnv()
	if err != nil {
		printError("tutordeck: %v", err)
		return 1
	}
	if err := env.Creds.Clear(); err != nil {
		printError("tutordeck: clear token: %v", err)
		return 1
	}
	fmt.Println(infoStyle.Render("Signed out."))
	return 0
}

// HandleStatus shows the signed-in profile, if any.
func HandleStatus(args Args) int {
	env, err := LoadEnv()
	if err != nil {
		printError("tutordeck: %v", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()

	if args.Instructor {
		profile, err := env.Client.InstructorProfile(ctx)
		if err != nil {
			return reportStatusError(err)
		}
		fmt.Printf("Signed in as %s <%s> (instructor)\n", profile.Name, profile.Email)
		if profile.Headline != "" {
			fmt.Println(infoStyle.Render("  " + profile.Headline))
		}
		if len(profile.Subjects) > 0 {
			fmt.Println(infoStyle.Render("  Subjects: " + strings.Join(profile.Subjects, ", ")))
		}
		return 0
	}

	profile, err := env.Client.StudentProfile(ctx)
	if err != nil {
		return reportStatusError(err)
	}
	fmt.Printf("Signed in as %s <%s> (student)\n", profile.Name, profile.Email)
	fmt.Println(infoStyle.Render("  Backend: " + env.Client.BaseURL()))
	return 0
}

func reportStatusError(err error) int {
	if errors.Is(err, api.ErrNotAuthenticated) {
		fmt.Println(infoStyle.Render("Not signed in. Run 'tutordeck login'."))
		return 0
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.Status == 401 {
		fmt.Println(infoStyle.Render("Session expired. Run 'tutordeck login'."))
		return 0
	}
	printError("tutordeck: status: %v", err)
	return 1
}
