package lifecycle

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourorg/tradingcore/internal/config"
	"github.com/yourorg/tradingcore/internal/domain"
	"github.com/yourorg/tradingcore/internal/tradeerr"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9_]{1,20}$`)

var (
	minPrice = decimal.NewFromFloat(0.01)
	maxPrice = decimal.NewFromFloat(100000.00)
)

// validated is the internal result of a successful validation pass: the raw
// request plus the effective price the order type's price rules resolve.
type validated struct {
	req           domain.OrderRequest
	effectivePrice decimal.Decimal // zero value means "no price" (MARKET)
	limitPrice    decimal.Decimal
	stopPrice     decimal.Decimal
}

// validate runs the checks in a fixed order, failing fast with the specific
// ValidationError sub-kind the first broken rule names.
func validate(req domain.OrderRequest, flags config.FeatureFlags, maxNotional decimal.Decimal, now time.Time) (validated, error) {
	if !symbolPattern.MatchString(req.Symbol) {
		return validated{}, &tradeerr.ValidationError{Field: "symbol", Constraint: "1-20 uppercase alnum/underscore", RejectedValue: req.Symbol}
	}
	if !req.Exchange.Valid() {
		return validated{}, &tradeerr.ValidationError{Field: "exchange", Constraint: "one of NSE, BSE, MCX", RejectedValue: string(req.Exchange)}
	}
	if req.Side != domain.SideBuy && req.Side != domain.SideSell {
		return validated{}, &tradeerr.ValidationError{Field: "side", Constraint: "BUY or SELL", RejectedValue: string(req.Side)}
	}
	if req.Quantity < 1 || req.Quantity > 1000000 {
		return validated{}, &tradeerr.ValidationError{Field: "quantity", Constraint: "1-1000000", RejectedValue: itoa(req.Quantity)}
	}
	if req.IcebergDisplayQty > 0 && !flags.AdvancedAlgoOrders {
		return validated{}, &tradeerr.ValidationError{Field: "iceberg_display_qty", Constraint: "advanced algo orders disabled", RejectedValue: itoa(req.IcebergDisplayQty)}
	}
	if len(req.AlgoParams) > 0 && !flags.AdvancedAlgoOrders {
		return validated{}, &tradeerr.ValidationError{Field: "algo_params", Constraint: "advanced algo orders disabled", RejectedValue: "present"}
	}

	limit, stop, err := parsePrices(req)
	if err != nil {
		return validated{}, err
	}
	if err := boundPrice("limit_price", limit); err != nil {
		return validated{}, err
	}
	if err := boundPrice("stop_price", stop); err != nil {
		return validated{}, err
	}

	effective, err := priceRequirementMatrix(req, limit, stop)
	if err != nil {
		return validated{}, err
	}

	if err := tifCoherence(req, now); err != nil {
		return validated{}, err
	}

	if !effective.IsZero() {
		notional := effective.Mul(decimal.NewFromInt(req.Quantity))
		if notional.GreaterThan(maxNotional) {
			return validated{}, &tradeerr.ValidationError{Field: "notional", Constraint: "effective_price * quantity <= max_notional", RejectedValue: notional.String()}
		}
	}

	return validated{req: req, effectivePrice: effective, limitPrice: limit, stopPrice: stop}, nil
}

func parsePrices(req domain.OrderRequest) (limit, stop decimal.Decimal, err error) {
	if req.LimitPrice != nil {
		limit, err = decimal.NewFromString(req.LimitPrice.Value)
		if err != nil {
			return decimal.Zero, decimal.Zero, &tradeerr.ValidationError{Field: "limit_price", Constraint: "valid decimal", RejectedValue: req.LimitPrice.Value}
		}
	}
	if req.StopPrice != nil {
		stop, err = decimal.NewFromString(req.StopPrice.Value)
		if err != nil {
			return decimal.Zero, decimal.Zero, &tradeerr.ValidationError{Field: "stop_price", Constraint: "valid decimal", RejectedValue: req.StopPrice.Value}
		}
	}
	return limit, stop, nil
}

func boundPrice(field string, p decimal.Decimal) error {
	if p.IsZero() {
		return nil
	}
	if !p.GreaterThan(minPrice) || p.GreaterThan(maxPrice) {
		return &tradeerr.ValidationError{Field: field, Constraint: "in (0.01, 100000.00]", RejectedValue: p.String()}
	}
	if p.Exponent() < -4 {
		return &tradeerr.ValidationError{Field: field, Constraint: "at most 4 decimal places", RejectedValue: p.String()}
	}
	return nil
}

// priceRequirementMatrix resolves which price fields each order type
// requires and which of them acts as the effective price.
func priceRequirementMatrix(req domain.OrderRequest, limit, stop decimal.Decimal) (decimal.Decimal, error) {
	switch req.OrderType {
	case domain.OrderTypeMarket:
		return decimal.Zero, nil
	case domain.OrderTypeLimit:
		if req.LimitPrice == nil {
			return decimal.Zero, &tradeerr.ValidationError{Field: "limit_price", Constraint: "required for LIMIT", RejectedValue: ""}
		}
		return limit, nil
	case domain.OrderTypeStopLoss:
		if req.StopPrice == nil {
			return decimal.Zero, &tradeerr.ValidationError{Field: "stop_price", Constraint: "required for STOP_LOSS", RejectedValue: ""}
		}
		return stop, nil
	case domain.OrderTypeStopLimit:
		if req.LimitPrice == nil || req.StopPrice == nil {
			return decimal.Zero, &tradeerr.ValidationError{Field: "stop_limit", Constraint: "both limit_price and stop_price required", RejectedValue: ""}
		}
		if req.Side == domain.SideBuy && stop.LessThan(limit) {
			return decimal.Zero, &tradeerr.ValidationError{Field: "stop_price", Constraint: "BUY requires stop_price >= limit_price", RejectedValue: stop.String()}
		}
		if req.Side == domain.SideSell && stop.GreaterThan(limit) {
			return decimal.Zero, &tradeerr.ValidationError{Field: "stop_price", Constraint: "SELL requires stop_price <= limit_price", RejectedValue: stop.String()}
		}
		return limit, nil
	default:
		return decimal.Zero, &tradeerr.ValidationError{Field: "order_type", Constraint: "one of MARKET, LIMIT, STOP_LOSS, STOP_LIMIT", RejectedValue: string(req.OrderType)}
	}
}

func tifCoherence(req domain.OrderRequest, now time.Time) error {
	if req.TimeInForce == domain.TIFGTD {
		if req.ExpiryDate == nil {
			return &tradeerr.ValidationError{Field: "expiry_date", Constraint: "required when time_in_force=GTD", RejectedValue: ""}
		}
		if !req.ExpiryDate.After(now) {
			return &tradeerr.ValidationError{Field: "expiry_date", Constraint: "must be strictly in the future", RejectedValue: req.ExpiryDate.String()}
		}
		return nil
	}
	if req.ExpiryDate != nil {
		return &tradeerr.ValidationError{Field: "expiry_date", Constraint: "only allowed when time_in_force=GTD", RejectedValue: req.ExpiryDate.String()}
	}
	return nil
}

func itoa(v int64) string {
	return decimal.NewFromInt(v).String()
}
