package database

// schemas maps database names to their DDL. Every statement must be
// idempotent so Migrate can run at every startup.
var schemas = map[string]string{
	"market":      marketSchema,
	"factors":     factorsSchema,
	"performance": performanceSchema,
	"config":      configSchema,
	"cache":       cacheSchema,
	"clientdata":  clientDataSchema,
}

const marketSchema = `
CREATE TABLE IF NOT EXISTS stock_basic (
    code       TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    area       TEXT,
    industry   TEXT,
    market     TEXT,
    list_date  TEXT,
    is_st      INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stock_basic_industry ON stock_basic(industry);

CREATE TABLE IF NOT EXISTS stock_snapshot (
    code          TEXT PRIMARY KEY,
    trade_date    TEXT,
    close         REAL,
    pe            REAL,
    pb            REAL,
    total_mv      REAL,
    circ_mv       REAL,
    turnover_rate REAL,
    updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fund_basic (
    code       TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    fund_type  TEXT,
    management TEXT,
    found_date TEXT,
    is_etf     INTEGER NOT NULL DEFAULT 0,
    status     TEXT,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trade_calendar (
    cal_date TEXT PRIMARY KEY,
    is_open  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS index_quotes (
    code       TEXT PRIMARY KEY,
    name       TEXT,
    price      REAL NOT NULL,
    change_pct REAL NOT NULL,
    updated_at TEXT NOT NULL
);
`

const factorsSchema = `
CREATE TABLE IF NOT EXISTS stock_factors_daily (
    code                   TEXT NOT NULL,
    trade_date             TEXT NOT NULL,
    consolidation_score    REAL,
    volume_precursor       REAL,
    ma_convergence         REAL,
    rsi_14                 REAL,
    macd_signal            REAL,
    bollinger_position     REAL,
    roe                    REAL,
    roe_yoy                REAL,
    gross_margin           REAL,
    gross_margin_stability REAL,
    debt_ratio             REAL,
    ocf_to_profit          REAL,
    revenue_growth_yoy     REAL,
    profit_growth_yoy      REAL,
    revenue_cagr_3y        REAL,
    profit_cagr_3y         REAL,
    peg_ratio              REAL,
    pe_percentile          REAL,
    pb_percentile          REAL,
    main_inflow_5d         REAL,
    main_inflow_trend      REAL,
    north_inflow_5d        REAL,
    retail_outflow_ratio   REAL,
    short_term_score       REAL,
    long_term_score        REAL,
    computed_at            TEXT NOT NULL,
    PRIMARY KEY (code, trade_date)
);
CREATE INDEX IF NOT EXISTS idx_stock_factors_date ON stock_factors_daily(trade_date);
CREATE INDEX IF NOT EXISTS idx_stock_factors_short ON stock_factors_daily(trade_date, short_term_score DESC);
CREATE INDEX IF NOT EXISTS idx_stock_factors_long ON stock_factors_daily(trade_date, long_term_score DESC);

CREATE TABLE IF NOT EXISTS fund_factors_daily (
    code                     TEXT NOT NULL,
    trade_date               TEXT NOT NULL,
    return_1w                REAL,
    return_1m                REAL,
    return_3m                REAL,
    return_6m                REAL,
    return_1y                REAL,
    rank_1w                  REAL,
    rank_1m                  REAL,
    rank_3m                  REAL,
    rank_6m                  REAL,
    rank_1y                  REAL,
    volatility_20d           REAL,
    volatility_60d           REAL,
    sharpe_20d               REAL,
    sharpe_1y                REAL,
    sortino_1y               REAL,
    calmar_1y                REAL,
    max_drawdown_1y          REAL,
    avg_recovery_days        REAL,
    manager_tenure_years     REAL,
    bull_alpha               REAL,
    bear_alpha               REAL,
    style_consistency        REAL,
    fund_size                REAL,
    holdings_avg_roe         REAL,
    holdings_diversification REAL,
    holdings_turnover        REAL,
    short_term_score         REAL,
    long_term_score          REAL,
    computed_at              TEXT NOT NULL,
    PRIMARY KEY (code, trade_date)
);
CREATE INDEX IF NOT EXISTS idx_fund_factors_date ON fund_factors_daily(trade_date);
CREATE INDEX IF NOT EXISTS idx_fund_factors_short ON fund_factors_daily(trade_date, short_term_score DESC);
CREATE INDEX IF NOT EXISTS idx_fund_factors_long ON fund_factors_daily(trade_date, long_term_score DESC);
`

const performanceSchema = `
CREATE TABLE IF NOT EXISTS recommendation_performance (
    id                TEXT PRIMARY KEY,
    rec_type          TEXT NOT NULL,
    code              TEXT NOT NULL,
    name              TEXT,
    trade_date        TEXT NOT NULL,
    score             REAL NOT NULL,
    confidence        TEXT NOT NULL,
    key_factors       TEXT,
    entry_price       REAL,
    target_return_pct REAL NOT NULL,
    stop_loss_pct     REAL NOT NULL,
    price_7d          REAL,
    return_7d         REAL,
    price_30d         REAL,
    return_30d        REAL,
    final_return      REAL,
    hit_target        INTEGER,
    hit_stop          INTEGER,
    status            TEXT NOT NULL DEFAULT 'pending',
    created_at        TEXT NOT NULL,
    updated_at        TEXT NOT NULL,
    UNIQUE (rec_type, code, trade_date)
);
CREATE INDEX IF NOT EXISTS idx_perf_status ON recommendation_performance(status);
CREATE INDEX IF NOT EXISTS idx_perf_type_date ON recommendation_performance(rec_type, trade_date);
`

const configSchema = `
CREATE TABLE IF NOT EXISTS settings (
    key        TEXT PRIMARY KEY,
    value      TEXT,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_prefs (
    user_id       TEXT PRIMARY KEY,
    prefs         TEXT NOT NULL,
    pre_market_at TEXT,
    post_market_at TEXT,
    updated_at    TEXT NOT NULL
);
`

const cacheSchema = `
CREATE TABLE IF NOT EXISTS job_runs (
    id          TEXT PRIMARY KEY,
    job         TEXT NOT NULL,
    kind        TEXT,
    trade_date  TEXT,
    status      TEXT NOT NULL,
    total       INTEGER NOT NULL DEFAULT 0,
    succeeded   INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0,
    error       TEXT,
    started_at  TEXT NOT NULL,
    finished_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_job_runs_job ON job_runs(job, started_at);
`

const clientDataSchema = `
CREATE TABLE IF NOT EXISTS api_cache (
    cache_key  TEXT PRIMARY KEY,
    payload    BLOB NOT NULL,
    expires_at INTEGER NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_api_cache_expiry ON api_cache(expires_at);
`
