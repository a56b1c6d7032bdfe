package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"votesync/chain"
	"votesync/cmd/internal/bootstrap"
	"votesync/store"
	"votesync/voting"
)

func runStatusCommand(args []string, stdout, stderr io.Writer) int {
	if !expectArgs("status", args, 0, stderr) {
		return 1
	}
	return withSession(stderr, func(ctx context.Context, app *bootstrap.App) int {
		if err := printJSON(stdout, newStatusView(app.Store.Snapshot())); err != nil {
			return fail(stderr, err)
		}
		return 0
	})
}

func runProposalsCommand(args []string, stdout, stderr io.Writer) int {
	if !expectArgs("proposals", args, 0, stderr) {
		return 1
	}
	return withSession(stderr, func(ctx context.Context, app *bootstrap.App) int {
		list, err := app.Manager.Proposals(ctx)
		if err != nil {
			return fail(stderr, err)
		}
		if err := printJSON(stdout, newProposalViews(list)); err != nil {
			return fail(stderr, err)
		}
		return 0
	})
}

func runWinnerCommand(args []string, stdout, stderr io.Writer) int {
	if !expectArgs("winner", args, 0, stderr) {
		return 1
	}
	return withSession(stderr, func(ctx context.Context, app *bootstrap.App) int {
		winner, err := app.Manager.Winner(ctx)
		if err != nil {
			return fail(stderr, err)
		}
		if err := printJSON(stdout, newProposalView(winner)); err != nil {
			return fail(stderr, err)
		}
		return 0
	})
}

func runVoterCommand(args []string, stdout, stderr io.Writer) int {
	if !expectArgs("voter", args, 1, stderr) {
		return 1
	}
	addr, err := chain.FormatAddress(args[0])
	if err != nil {
		return fail(stderr, err)
	}
	return withSession(stderr, func(ctx context.Context, app *bootstrap.App) int {
		voter, err := app.Manager.Voter(ctx, addr)
		if err != nil {
			return fail(stderr, err)
		}
		if err := printJSON(stdout, map[string]interface{}{
			"address":         addr.Hex(),
			"isRegistered":    voter.IsRegistered,
			"hasVoted":        voter.HasVoted,
			"votedProposalId": voter.VotedProposalID,
		}); err != nil {
			return fail(stderr, err)
		}
		return 0
	})
}

func runAddVoterCommand(args []string, stdout, stderr io.Writer) int {
	if !expectArgs("add-voter", args, 1, stderr) {
		return 1
	}
	if _, err := chain.FormatAddress(args[0]); err != nil {
		return fail(stderr, err)
	}
	return submit(stdout, stderr, func(ctx context.Context, st *store.Store) (store.Pending, error) {
		return st.AddVoter(ctx, args[0])
	})
}

func runProposeCommand(args []string, stdout, stderr io.Writer) int {
	description := strings.TrimSpace(strings.Join(args, " "))
	if description == "" {
		fmt.Fprintln(stderr, "Error: propose expects a description")
		return 1
	}
	return submit(stdout, stderr, func(ctx context.Context, st *store.Store) (store.Pending, error) {
		return st.AddProposal(ctx, description)
	})
}

func runVoteCommand(args []string, stdout, stderr io.Writer) int {
	if !expectArgs("vote", args, 1, stderr) {
		return 1
	}
	id, err := strconv.ParseUint(strings.TrimSpace(args[0]), 10, 64)
	if err != nil {
		return fail(stderr, fmt.Errorf("invalid proposal id %q", args[0]))
	}
	return submit(stdout, stderr, func(ctx context.Context, st *store.Store) (store.Pending, error) {
		return st.Vote(ctx, id)
	})
}

func runAdvanceCommand(args []string, stdout, stderr io.Writer) int {
	if !expectArgs("advance", args, 1, stderr) {
		return 1
	}
	raw := strings.TrimSpace(args[0])
	var explicit *voting.Phase
	if raw != "next" {
		n, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			return fail(stderr, fmt.Errorf("invalid phase %q", raw))
		}
		phase, err := voting.ParsePhase(n)
		if err != nil {
			return fail(stderr, err)
		}
		explicit = &phase
	}
	return submit(stdout, stderr, func(ctx context.Context, st *store.Store) (store.Pending, error) {
		target, err := advanceTarget(st.Snapshot(), explicit)
		if err != nil {
			return store.Pending{}, err
		}
		return st.AdvancePhase(ctx, target)
	})
}

func advanceTarget(s store.Session, explicit *voting.Phase) (voting.Phase, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if !s.PhaseKnown {
		return 0, fmt.Errorf("current phase unknown")
	}
	next, ok := s.Phase.Next()
	if !ok {
		return 0, fmt.Errorf("workflow already finished")
	}
	return next, nil
}

func runTallyCommand(args []string, stdout, stderr io.Writer) int {
	if !expectArgs("tally", args, 0, stderr) {
		return 1
	}
	return submit(stdout, stderr, func(ctx context.Context, st *store.Store) (store.Pending, error) {
		return st.Tally(ctx)
	})
}

// submit connects the wallet, runs write and prints the pending action.
func submit(stdout, stderr io.Writer, write func(context.Context, *store.Store) (store.Pending, error)) int {
	return withSession(stderr, func(ctx context.Context, app *bootstrap.App) int {
		if _, err := app.Store.ConnectWallet(ctx); err != nil {
			return fail(stderr, err)
		}
		pending, err := write(ctx, app.Store)
		if err != nil {
			return fail(stderr, err)
		}
		if err := printJSON(stdout, newPendingView(pending)); err != nil {
			return fail(stderr, err)
		}
		return 0
	})
}

func runNetworkCommand(args []string, stdout, stderr io.Writer) int {
	if !expectArgs("network", args, 1, stderr) {
		return 1
	}
	id, err := chain.ParseChainID(args[0])
	if err != nil {
		return fail(stderr, err)
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fail(stderr, err)
	}
	name, known := chain.NetworkName(id)
	if err := printJSON(stdout, map[string]interface{}{
		"id":       id,
		"hex":      chain.FormatChainID(id),
		"name":     name,
		"known":    known,
		"expected": chain.NewGuard(cfg.ExpectedNetworkID).IsNetworkValid(id),
	}); err != nil {
		return fail(stderr, err)
	}
	return 0
}

func runWatchCommand(args []string, stdout, stderr io.Writer) int {
	if !expectArgs("watch", args, 0, stderr) {
		return 1
	}
	return withSession(stderr, func(ctx context.Context, app *bootstrap.App) int {
		applied := make(chan store.Applied, 64)
		sub := app.Store.SubscribeEvents(applied)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return 0
			case err := <-sub.Err():
				if err != nil {
					return fail(stderr, err)
				}
				return 0
			case a := <-applied:
				view := eventView{Kind: string(a.Event.Kind()), At: a.At, Event: a.Event}
				if err := printJSON(stdout, view); err != nil {
					return fail(stderr, err)
				}
			}
		}
	})
}
