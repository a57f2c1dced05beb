package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation and configuration errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidOrder         ErrorCode = 102
	ErrCodeInvalidPriceModel    ErrorCode = 103
	ErrCodeZeroQuantity         ErrorCode = 104
	ErrCodeUnsupportedOrderType ErrorCode = 105
	ErrCodeInvalidConversion    ErrorCode = 106
	ErrCodeInvalidVersion       ErrorCode = 107
	ErrCodeMissingParameter     ErrorCode = 108

	// Data/Resource errors (200-299)
	ErrCodeDataNotFound          ErrorCode = 200
	ErrCodeDataSourceUnavailable ErrorCode = 201
	ErrCodeQueryFailed           ErrorCode = 202
	ErrCodeWriteFailed           ErrorCode = 203

	// Strategy errors (400-499)
	ErrCodeStrategyNotLoaded    ErrorCode = 400
	ErrCodeStrategyRuntimeError ErrorCode = 401

	// Trade lifecycle errors (500-599)
	ErrCodeOrderFailed          ErrorCode = 500
	ErrCodeOrderRejected        ErrorCode = 501
	ErrCodeUnknownOrderID       ErrorCode = 502
	ErrCodeDuplicateTrade       ErrorCode = 503
	ErrCodeTradeClosed          ErrorCode = 504
	ErrCodeTrailingStopOverflow ErrorCode = 505
	ErrCodeMarketDataMissing    ErrorCode = 506
	ErrCodeOrderNotFound        ErrorCode = 507
	ErrCodeSymbolMismatch       ErrorCode = 508
	ErrCodeDuplicateExit        ErrorCode = 509

	// Backtest errors (600-649)
	ErrCodeBacktestStateNil     ErrorCode = 600
	ErrCodeBacktestInitFailed   ErrorCode = 601
	ErrCodeBacktestConfigError  ErrorCode = 602
	ErrCodeBacktestNoStrategy   ErrorCode = 603
	ErrCodeBacktestNoDatasource ErrorCode = 604
	ErrCodeBacktestNoResultsDir ErrorCode = 605

	// Fill matching errors (650-699)
	ErrCodeUnknownTradeID ErrorCode = 650
	ErrCodeTradeNotOpen   ErrorCode = 651

	// Callback errors (800-899)
	ErrCodeCallbackFailed ErrorCode = 800
)
