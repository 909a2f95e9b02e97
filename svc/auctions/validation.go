package auctions

import (
	"fmt"
	"time"

	"encore.app/pkg/errs"
	"encore.app/pkg/money"
)

// Bid admission rules. Checks run in a fixed order so that rejections are
// deterministic: auction open → not the seller → subscription → not already
// highest → amount. The amount check is last because it needs the current
// highest bid, which is only read under the row lock.

// checkAuctionOpen rejects bids against auctions that are not active or whose
// end timestamp has passed. Expiry is computed from end_at against now, not
// from the status flag alone: a background closer may not have flipped the
// status yet and late bids must still be rejected.
func checkAuctionOpen(a *Auction, now time.Time) error {
	if a.Status != AuctionStatusActive {
		return errs.New(errs.BidAuctionClosed, "this auction is no longer open for bidding")
	}
	if !a.EndAt.After(now) {
		return errs.New(errs.BidAuctionClosed, "this auction has ended")
	}
	return nil
}

// checkNotSeller rejects sellers bidding on their own auctions.
func checkNotSeller(a *Auction, bidderID int64) error {
	if a.SellerID == bidderID {
		return errs.New(errs.BidSelfBid, "you cannot bid on your own auction")
	}
	return nil
}

// checkNotAlreadyHighest rejects a bidder who already holds the highest bid.
// They must wait to be outbid before bidding again, regardless of amount.
func checkNotAlreadyHighest(highest *Bid, bidderID int64) error {
	if highest != nil && highest.BidderID == bidderID {
		return errs.New(errs.BidAlreadyHighest, "you already hold the highest bid on this auction")
	}
	return nil
}

// minimumAcceptable computes the lowest amount that would be accepted given
// the current highest bid (nil if none). The first bid must meet the starting
// bid; later bids must exceed the current highest by at least the increment.
func minimumAcceptable(a *Auction, highest *Bid) float64 {
	if highest == nil {
		return a.StartingBid
	}
	step := a.BidIncrement
	if step <= 0 {
		step = 1.00
	}
	return money.RoundHalfUp(highest.Amount+step, 2)
}

// checkAmount validates the bid amount against the derived minimum. The
// rejection always reports the minimum acceptable amount so the bidder knows
// what would have succeeded.
func checkAmount(a *Auction, highest *Bid, amount float64) error {
	if amount <= 0 {
		return errs.New(errs.InvalidArgument, "bid amount must be positive")
	}
	min := minimumAcceptable(a, highest)
	if amount < min {
		return errs.New(errs.BidTooLow,
			fmt.Sprintf("bid of £%.2f is too low; the minimum acceptable bid is £%.2f", amount, min)).
			WithDetails(map[string]interface{}{"minimum_acceptable": min})
	}
	// Equal to the current highest is never sufficient; strictly greater is
	// required even when the configured increment is 0.
	if highest != nil && amount <= highest.Amount {
		return errs.New(errs.BidTooLow,
			fmt.Sprintf("bid of £%.2f does not exceed the current highest bid; the minimum acceptable bid is £%.2f", amount, min)).
			WithDetails(map[string]interface{}{"minimum_acceptable": min})
	}
	return nil
}

// validateAuctionTimes validates a new auction's schedule.
func validateAuctionTimes(endAt time.Time, now time.Time) error {
	if !endAt.After(now) {
		return errs.New(errs.InvalidArgument, "auction end time must be in the future")
	}
	return nil
}
