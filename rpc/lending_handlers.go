package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"lendledger/native/lending"
)

type lendPositionParams struct {
	User   string `json:"user"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type lendLiquidateParams struct {
	Liquidator      string `json:"liquidator"`
	Borrower        string `json:"borrower"`
	DebtAsset       string `json:"debtAsset"`
	CollateralAsset string `json:"collateralAsset"`
	DebtToCover     string `json:"debtToCover"`
}

type lendConfigureAssetParams struct {
	Asset                string `json:"asset"`
	CollateralFactor     uint64 `json:"collateralFactorBps"`
	LiquidationThreshold uint64 `json:"liquidationThresholdBps"`
	LiquidationBonus     uint64 `json:"liquidationBonusBps"`
	ReserveFactor        uint64 `json:"reserveFactorBps"`
	Decimals             uint8  `json:"decimals"`
	Enabled              bool   `json:"enabled"`
}

type lendRateParamsParams struct {
	Asset              string `json:"asset"`
	BaseRate           uint64 `json:"baseRateBps"`
	OptimalUtilization uint64 `json:"optimalUtilizationBps"`
	RateSlope1         uint64 `json:"rateSlope1Bps"`
	RateSlope2         uint64 `json:"rateSlope2Bps"`
}

type lendReservesParams struct {
	Asset     string `json:"asset"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type lendUserAssetParams struct {
	User  string `json:"user"`
	Asset string `json:"asset"`
}

type lendProjectionParams struct {
	User             string `json:"user"`
	Asset            string `json:"asset"`
	AdditionalBorrow string `json:"additionalBorrow"`
}

type lendAssetParams struct {
	Asset string `json:"asset"`
}

type lendAmountResult struct {
	Amount string `json:"amount"`
}

type lendWithdrawResult struct {
	Released string `json:"released"`
}

type lendRepayResult struct {
	Paid string `json:"paid"`
}

type lendLiquidateResult struct {
	Repaid string `json:"repaid"`
	Seized string `json:"seized"`
}

type lendHealthFactorResult struct {
	HealthFactor string `json:"healthFactor"`
	Infinite     bool   `json:"infinite"`
}

type lendRatesResult struct {
	BorrowRateBps uint64 `json:"borrowRateBps"`
	SupplyRateBps uint64 `json:"supplyRateBps"`
}

type lendPoolResult struct {
	Asset                    string `json:"asset"`
	TotalLiquidity           string `json:"totalLiquidity"`
	TotalBorrowed            string `json:"totalBorrowed"`
	TotalAccumulatedInterest string `json:"totalAccumulatedInterest"`
	LastInterestUpdate       uint64 `json:"lastInterestUpdate"`
}

type lendAssetResult struct {
	Asset                string `json:"asset"`
	CollateralFactor     uint64 `json:"collateralFactorBps"`
	LiquidationThreshold uint64 `json:"liquidationThresholdBps"`
	LiquidationBonus     uint64 `json:"liquidationBonusBps"`
	ReserveFactor        uint64 `json:"reserveFactorBps"`
	Decimals             uint8  `json:"decimals"`
	Enabled              bool   `json:"enabled"`
}

func decodeParams(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return false
	}
	return true
}

func (s *Server) parsePositionParams(w http.ResponseWriter, req *RPCRequest) (common.Address, common.Address, *big.Int, bool) {
	var params lendPositionParams
	if !decodeParams(w, req, &params) {
		return common.Address{}, common.Address{}, nil, false
	}
	user, err := parseAddress("user", params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return common.Address{}, common.Address{}, nil, false
	}
	asset, err := parseAddress("asset", params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return common.Address{}, common.Address{}, nil, false
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return common.Address{}, common.Address{}, nil, false
	}
	return user, asset, amount, true
}

func (s *Server) parseUserAssetParams(w http.ResponseWriter, req *RPCRequest) (common.Address, common.Address, bool) {
	var params lendUserAssetParams
	if !decodeParams(w, req, &params) {
		return common.Address{}, common.Address{}, false
	}
	user, err := parseAddress("user", params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return common.Address{}, common.Address{}, false
	}
	asset, err := parseAddress("asset", params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return common.Address{}, common.Address{}, false
	}
	return user, asset, true
}

func (s *Server) parseAssetParam(w http.ResponseWriter, req *RPCRequest) (common.Address, bool) {
	var params lendAssetParams
	if !decodeParams(w, req, &params) {
		return common.Address{}, false
	}
	asset, err := parseAddress("asset", params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return common.Address{}, false
	}
	return asset, true
}

func (s *Server) handleLendSupply(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	user, asset, amount, ok := s.parsePositionParams(w, req)
	if !ok {
		return
	}
	if moduleErr := s.lending.Supply(user, asset, amount); moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, lendAmountResult{Amount: amount.String()})
}

func (s *Server) handleLendWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	user, asset, amount, ok := s.parsePositionParams(w, req)
	if !ok {
		return
	}
	released, moduleErr := s.lending.Withdraw(user, asset, amount)
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, lendWithdrawResult{Released: released.String()})
}

func (s *Server) handleLendBorrow(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	user, asset, amount, ok := s.parsePositionParams(w, req)
	if !ok {
		return
	}
	if moduleErr := s.lending.Borrow(user, asset, amount); moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, lendAmountResult{Amount: amount.String()})
}

func (s *Server) handleLendRepay(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	user, asset, amount, ok := s.parsePositionParams(w, req)
	if !ok {
		return
	}
	paid, moduleErr := s.lending.Repay(user, asset, amount)
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, lendRepayResult{Paid: paid.String()})
}

func (s *Server) handleLendLiquidate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lendLiquidateParams
	if !decodeParams(w, req, &params) {
		return
	}
	liquidator, err := parseAddress("liquidator", params.Liquidator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	borrower, err := parseAddress("borrower", params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	debtAsset, err := parseAddress("debtAsset", params.DebtAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	collateralAsset, err := parseAddress("collateralAsset", params.CollateralAsset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	debtToCover, err := parseAmount(params.DebtToCover)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	repaid, seized, moduleErr := s.lending.Liquidate(liquidator, borrower, debtAsset, collateralAsset, debtToCover)
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, lendLiquidateResult{Repaid: repaid.String(), Seized: seized.String()})
}

func (s *Server) handleLendConfigureAsset(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lendConfigureAssetParams
	if !decodeParams(w, req, &params) {
		return
	}
	asset, err := parseAddress("asset", params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	cfg := lending.AssetConfig{
		Asset:                asset,
		CollateralFactor:     params.CollateralFactor,
		LiquidationThreshold: params.LiquidationThreshold,
		LiquidationBonus:     params.LiquidationBonus,
		ReserveFactor:        params.ReserveFactor,
		Decimals:             params.Decimals,
		Enabled:              params.Enabled,
	}
	if moduleErr := s.lending.ConfigureAsset(cfg); moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, lendAssetResultFromConfig(&cfg))
}

func (s *Server) handleLendSetInterestRateParams(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lendRateParamsParams
	if !decodeParams(w, req, &params) {
		return
	}
	asset, err := parseAddress("asset", params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	rateParams := lending.InterestRateParams{
		BaseRate:           params.BaseRate,
		OptimalUtilization: params.OptimalUtilization,
		RateSlope1:         params.RateSlope1,
		RateSlope2:         params.RateSlope2,
	}
	if moduleErr := s.lending.SetInterestRateParams(asset, rateParams); moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, rateParams)
}

func (s *Server) handleLendWithdrawReserves(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lendReservesParams
	if !decodeParams(w, req, &params) {
		return
	}
	asset, err := parseAddress("asset", params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	recipient, err := parseAddress("recipient", params.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if moduleErr := s.lending.WithdrawReserves(asset, recipient, amount); moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, lendAmountResult{Amount: amount.String()})
}

func healthFactorResult(hf *big.Int) lendHealthFactorResult {
	if hf.Cmp(lending.InfiniteHealthFactor) == 0 {
		return lendHealthFactorResult{HealthFactor: hf.String(), Infinite: true}
	}
	return lendHealthFactorResult{HealthFactor: hf.String()}
}

func (s *Server) handleLendGetHealthFactor(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		User string `json:"user"`
	}
	if !decodeParams(w, req, &params) {
		return
	}
	user, err := parseAddress("user", params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	hf, moduleErr := s.lending.HealthFactor(user)
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, healthFactorResult(hf))
}

func (s *Server) handleLendGetProjectedHealthFactor(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lendProjectionParams
	if !decodeParams(w, req, &params) {
		return
	}
	user, err := parseAddress("user", params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	asset, err := parseAddress("asset", params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	additional, err := parseAmount(params.AdditionalBorrow)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	hf, moduleErr := s.lending.ProjectedHealthFactor(user, asset, additional)
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, healthFactorResult(hf))
}

func (s *Server) handleLendGetUserSupply(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	user, asset, ok := s.parseUserAssetParams(w, req)
	if !ok {
		return
	}
	supply, moduleErr := s.lending.UserSupply(user, asset)
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, lendAmountResult{Amount: supply.String()})
}

func (s *Server) handleLendGetUserDebt(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	user, asset, ok := s.parseUserAssetParams(w, req)
	if !ok {
		return
	}
	debt, moduleErr := s.lending.UserDebt(user, asset)
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, lendAmountResult{Amount: debt.String()})
}

func (s *Server) handleLendCalculateInterestRate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	asset, ok := s.parseAssetParam(w, req)
	if !ok {
		return
	}
	borrowRate, supplyRate, moduleErr := s.lending.InterestRates(asset)
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, lendRatesResult{BorrowRateBps: borrowRate, SupplyRateBps: supplyRate})
}

func (s *Server) handleLendGetAvailableLiquidity(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	asset, ok := s.parseAssetParam(w, req)
	if !ok {
		return
	}
	available, moduleErr := s.lending.AvailableLiquidity(asset)
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, lendAmountResult{Amount: available.String()})
}

func (s *Server) handleLendGetGeneratedInterest(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	asset, ok := s.parseAssetParam(w, req)
	if !ok {
		return
	}
	interest, moduleErr := s.lending.GeneratedInterest(asset)
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, lendAmountResult{Amount: interest.String()})
}

func (s *Server) handleLendGetPool(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	asset, ok := s.parseAssetParam(w, req)
	if !ok {
		return
	}
	pool, moduleErr := s.lending.Pool(asset)
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	writeResult(w, req.ID, lendPoolResult{
		Asset:                    pool.Asset.Hex(),
		TotalLiquidity:           pool.TotalLiquidity.String(),
		TotalBorrowed:            pool.TotalBorrowed.String(),
		TotalAccumulatedInterest: pool.TotalAccumulatedInterest.String(),
		LastInterestUpdate:       pool.LastInterestUpdate,
	})
}

func lendAssetResultFromConfig(cfg *lending.AssetConfig) lendAssetResult {
	return lendAssetResult{
		Asset:                cfg.Asset.Hex(),
		CollateralFactor:     cfg.CollateralFactor,
		LiquidationThreshold: cfg.LiquidationThreshold,
		LiquidationBonus:     cfg.LiquidationBonus,
		ReserveFactor:        cfg.ReserveFactor,
		Decimals:             cfg.Decimals,
		Enabled:              cfg.Enabled,
	}
}

func (s *Server) handleLendListAssets(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	configs, moduleErr := s.lending.Assets()
	if moduleErr != nil {
		writeModuleError(w, req.ID, moduleErr)
		return
	}
	results := make([]lendAssetResult, 0, len(configs))
	for _, cfg := range configs {
		results = append(results, lendAssetResultFromConfig(cfg))
	}
	writeResult(w, req.ID, results)
}
