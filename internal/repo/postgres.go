package repo

import (
    "context"
    "errors"
    "time"

    "github.com/bwmarrin/snowflake"
    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/parthobardhan/github-devin-dashboard/internal/config"
    "github.com/parthobardhan/github-devin-dashboard/internal/domain"
    "github.com/rs/zerolog"
)

type DB struct {
    Pool *pgxpool.Pool
    log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
    pool, err := pgxpool.New(ctx, cfg.DBDSN)
    if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
    if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
    return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
    db   *DB
    ids  *snowflake.Node
    log  zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository {
    node, err := snowflake.NewNode(1)
    if err != nil { log.Fatal().Err(err).Msg("snowflake node init failed") }
    return &Repository{db: d, ids: node, log: log}
}

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
    return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
    if !ok && err == nil { return errors.New("advisory unlock returned false") }
    return err
}

// Migrate creates the schema when missing. Idempotent, runs at startup.
func (r *Repository) Migrate(ctx context.Context) error {
    const ddl = `
        CREATE TABLE IF NOT EXISTS sessions(
            session_id       TEXT PRIMARY KEY,
            session_type     TEXT NOT NULL DEFAULT 'general',
            status           TEXT NOT NULL DEFAULT 'pending',
            prompt           TEXT NOT NULL DEFAULT '',
            repository_name  TEXT NOT NULL DEFAULT '',
            issue_number     INT  NOT NULL DEFAULT 0,
            tags             TEXT[],
            output           TEXT,
            error_message    TEXT,
            confidence_score DOUBLE PRECISION,
            session_url      TEXT,
            github_issue_url TEXT,
            created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
            completed_at     TIMESTAMPTZ
        );
        CREATE INDEX IF NOT EXISTS sessions_repo_issue_idx ON sessions(repository_name, issue_number, created_at DESC);

        CREATE TABLE IF NOT EXISTS scope_results(
            id                        BIGINT PRIMARY KEY,
            session_id                TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
            repository_name           TEXT NOT NULL,
            issue_number              INT  NOT NULL,
            confidence_score          DOUBLE PRECISION NOT NULL,
            complexity_estimate       TEXT NOT NULL,
            estimated_hours           DOUBLE PRECISION,
            requirements_clarity      DOUBLE PRECISION,
            technical_feasibility     DOUBLE PRECISION,
            scope_completeness        DOUBLE PRECISION,
            recommended_approach      TEXT,
            potential_challenges      TEXT[],
            required_knowledge        TEXT[],
            dependencies              TEXT[],
            action_plan               TEXT[],
            acceptance_criteria       TEXT[],
            parsed                    BOOLEAN NOT NULL DEFAULT false,
            created_at                TIMESTAMPTZ NOT NULL DEFAULT now(),
            analysis_duration_minutes DOUBLE PRECISION
        );
        CREATE INDEX IF NOT EXISTS scope_results_repo_idx ON scope_results(repository_name, created_at DESC);

        CREATE TABLE IF NOT EXISTS repo_files(
            id               BIGINT PRIMARY KEY,
            repository_name  TEXT NOT NULL,
            path             TEXT NOT NULL,
            file_type        TEXT,
            language         TEXT,
            importance_score DOUBLE PRECISION NOT NULL DEFAULT 0,
            complexity_score DOUBLE PRECISION NOT NULL DEFAULT 0,
            description      TEXT,
            related_issues   INT[],
            UNIQUE(repository_name, path)
        );

        CREATE TABLE IF NOT EXISTS job_runs(
            id          BIGSERIAL PRIMARY KEY,
            kind        TEXT NOT NULL,
            started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
            finished_at TIMESTAMPTZ,
            success     BOOLEAN,
            error       TEXT
        );`
    _, err := r.db.Pool.Exec(ctx, ddl)
    return err
}

func (r *Repository) SaveSession(ctx context.Context, s domain.Session) error {
    const q = `
        INSERT INTO sessions(session_id, session_type, status, prompt, repository_name, issue_number,
            tags, output, error_message, confidence_score, session_url, github_issue_url,
            created_at, updated_at, completed_at)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        ON CONFLICT(session_id) DO UPDATE SET
            status=EXCLUDED.status,
            output=EXCLUDED.output,
            error_message=EXCLUDED.error_message,
            confidence_score=EXCLUDED.confidence_score,
            session_url=EXCLUDED.session_url,
            updated_at=EXCLUDED.updated_at,
            completed_at=EXCLUDED.completed_at`
    _, err := r.db.Pool.Exec(ctx, q, s.SessionID, string(s.SessionType), string(s.Status), s.Prompt,
        s.RepositoryName, s.IssueNumber, s.Tags, nullStr(s.Output), nullStr(s.ErrorMessage),
        s.ConfidenceScore, nullStr(s.SessionURL), nullStr(s.GitHubIssueURL),
        s.CreatedAt, s.UpdatedAt, s.CompletedAt)
    return err
}

func (r *Repository) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
    const q = `
        SELECT session_id, session_type, status, prompt, repository_name, issue_number,
            tags, COALESCE(output,''), COALESCE(error_message,''), COALESCE(confidence_score,0),
            COALESCE(session_url,''), COALESCE(github_issue_url,''), created_at, updated_at, completed_at
        FROM sessions WHERE session_id=$1`
    s, err := scanSession(r.db.Pool.QueryRow(ctx, q, sessionID))
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    return s, nil
}

func (r *Repository) MostRecentSession(ctx context.Context, repo string, issueNumber int) (*domain.Session, error) {
    const q = `
        SELECT session_id, session_type, status, prompt, repository_name, issue_number,
            tags, COALESCE(output,''), COALESCE(error_message,''), COALESCE(confidence_score,0),
            COALESCE(session_url,''), COALESCE(github_issue_url,''), created_at, updated_at, completed_at
        FROM sessions WHERE repository_name=$1 AND issue_number=$2
        ORDER BY created_at DESC LIMIT 1`
    s, err := scanSession(r.db.Pool.QueryRow(ctx, q, repo, issueNumber))
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    return s, nil
}

func (r *Repository) ListSessions(ctx context.Context, repo string, limit int) ([]domain.SessionSummary, error) {
    if limit <= 0 { limit = 50 }
    const base = `
        SELECT session_id, session_type, status, repository_name, issue_number,
            COALESCE(confidence_score,0), created_at
        FROM sessions`
    var rows pgx.Rows
    var err error
    if repo == "" {
        rows, err = r.db.Pool.Query(ctx, base+` ORDER BY created_at DESC LIMIT $1`, limit)
    } else {
        rows, err = r.db.Pool.Query(ctx, base+` WHERE repository_name=$1 ORDER BY created_at DESC LIMIT $2`, repo, limit)
    }
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.SessionSummary
    for rows.Next() {
        var s domain.SessionSummary
        var typ, status string
        if err := rows.Scan(&s.SessionID, &typ, &status, &s.RepositoryName, &s.IssueNumber, &s.ConfidenceScore, &s.CreatedAt); err != nil { return nil, err }
        s.SessionType = domain.SessionType(typ)
        s.Status = domain.SessionStatus(status)
        out = append(out, s)
    }
    return out, rows.Err()
}

func (r *Repository) ActiveSessionsForIssue(ctx context.Context, repo string, issueNumber int) ([]domain.SessionSummary, error) {
    const q = `
        SELECT session_id, session_type, status, repository_name, issue_number,
            COALESCE(confidence_score,0), created_at
        FROM sessions
        WHERE repository_name=$1 AND issue_number=$2 AND status IN ('pending','running')
        ORDER BY created_at DESC`
    rows, err := r.db.Pool.Query(ctx, q, repo, issueNumber)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.SessionSummary
    for rows.Next() {
        var s domain.SessionSummary
        var typ, status string
        if err := rows.Scan(&s.SessionID, &typ, &status, &s.RepositoryName, &s.IssueNumber, &s.ConfidenceScore, &s.CreatedAt); err != nil { return nil, err }
        s.SessionType = domain.SessionType(typ)
        s.Status = domain.SessionStatus(status)
        out = append(out, s)
    }
    return out, rows.Err()
}

// SessionStats aggregates session counters for the dashboard in one query.
func (r *Repository) SessionStats(ctx context.Context) (total, active, completed, failed, startedToday, completedToday int, err error) {
    const q = `
        SELECT COUNT(*),
            COUNT(*) FILTER (WHERE status IN ('pending','running')),
            COUNT(*) FILTER (WHERE status = 'completed'),
            COUNT(*) FILTER (WHERE status = 'failed'),
            COUNT(*) FILTER (WHERE created_at >= date_trunc('day', now())),
            COUNT(*) FILTER (WHERE completed_at >= date_trunc('day', now()))
        FROM sessions`
    err = r.db.Pool.QueryRow(ctx, q).Scan(&total, &active, &completed, &failed, &startedToday, &completedToday)
    return
}

func (r *Repository) SaveScopeResult(ctx context.Context, sr domain.ScopeResult) error {
    const q = `
        INSERT INTO scope_results(id, session_id, repository_name, issue_number,
            confidence_score, complexity_estimate, estimated_hours,
            requirements_clarity, technical_feasibility, scope_completeness,
            recommended_approach, potential_challenges, required_knowledge,
            dependencies, action_plan, acceptance_criteria, parsed,
            created_at, analysis_duration_minutes)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`
    _, err := r.db.Pool.Exec(ctx, q, r.ids.Generate().Int64(), sr.SessionID, sr.RepositoryName, sr.IssueNumber,
        sr.ConfidenceScore, sr.ComplexityEstimate, sr.EstimatedHours,
        sr.RequirementsClarity, sr.TechnicalFeasibility, sr.ScopeCompleteness,
        nullStr(sr.RecommendedApproach), sr.PotentialChallenges, sr.RequiredKnowledge,
        sr.Dependencies, sr.ActionPlan, sr.AcceptanceCriteria, sr.Parsed,
        sr.CreatedAt, sr.AnalysisDurationMinutes)
    return err
}

func (r *Repository) RecentScopeSummaries(ctx context.Context, repo string, limit int) ([]domain.ScopeSummary, error) {
    if limit <= 0 { limit = 3 }
    const q = `
        SELECT issue_number, confidence_score, complexity_estimate,
            COALESCE(recommended_approach,''), potential_challenges, created_at
        FROM scope_results WHERE repository_name=$1
        ORDER BY created_at DESC LIMIT $2`
    rows, err := r.db.Pool.Query(ctx, q, repo, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.ScopeSummary
    for rows.Next() {
        var s domain.ScopeSummary
        var at time.Time
        if err := rows.Scan(&s.IssueNumber, &s.ConfidenceScore, &s.ComplexityEstimate, &s.RecommendedApproach, &s.KeyChallenges, &at); err != nil { return nil, err }
        s.CreatedAt = at.Format(time.RFC3339)
        out = append(out, s)
    }
    return out, rows.Err()
}

func (r *Repository) RelevantFiles(ctx context.Context, repo string, limit int) ([]domain.RepoFile, error) {
    if limit <= 0 { limit = 15 }
    const q = `
        SELECT id, repository_name, path, COALESCE(file_type,''), COALESCE(language,''),
            importance_score, complexity_score, COALESCE(description,''), related_issues
        FROM repo_files WHERE repository_name=$1
        ORDER BY importance_score DESC, path ASC LIMIT $2`
    rows, err := r.db.Pool.Query(ctx, q, repo, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.RepoFile
    for rows.Next() {
        var f domain.RepoFile
        if err := rows.Scan(&f.ID, &f.RepositoryName, &f.Path, &f.FileType, &f.Language,
            &f.ImportanceScore, &f.ComplexityScore, &f.Description, &f.RelatedIssues); err != nil { return nil, err }
        out = append(out, f)
    }
    return out, rows.Err()
}

func (r *Repository) UpsertRepoFiles(ctx context.Context, files []domain.RepoFile) error {
    if len(files) == 0 { return nil }
    batch := &pgx.Batch{}
    const q = `
        INSERT INTO repo_files(id, repository_name, path, file_type, language,
            importance_score, complexity_score, description, related_issues)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT(repository_name, path) DO UPDATE SET
            file_type=EXCLUDED.file_type,
            language=EXCLUDED.language,
            importance_score=EXCLUDED.importance_score,
            complexity_score=EXCLUDED.complexity_score,
            description=EXCLUDED.description,
            related_issues=EXCLUDED.related_issues`
    for _, f := range files {
        batch.Queue(q, r.ids.Generate().Int64(), f.RepositoryName, f.Path, nullStr(f.FileType), nullStr(f.Language),
            f.ImportanceScore, f.ComplexityScore, nullStr(f.Description), f.RelatedIssues)
    }
    br := r.db.Pool.SendBatch(ctx, batch)
    defer br.Close()
    for range files { if _, err := br.Exec(); err != nil { return err } }
    return nil
}

// ClearScopingData wipes sessions and scope results. Used by the maintenance
// endpoint; repo_files are kept since re-deriving them is expensive.
func (r *Repository) ClearScopingData(ctx context.Context) (sessions, results int64, err error) {
    tagRes, err := r.db.Pool.Exec(ctx, `DELETE FROM scope_results`)
    if err != nil { return 0, 0, err }
    results = tagRes.RowsAffected()
    tagSes, err := r.db.Pool.Exec(ctx, `DELETE FROM sessions`)
    if err != nil { return 0, results, err }
    sessions = tagSes.RowsAffected()
    return sessions, results, nil
}

func (r *Repository) StartJobRun(ctx context.Context, kind string) (int64, error) {
    var id int64
    err := r.db.Pool.QueryRow(ctx, `INSERT INTO job_runs(kind) VALUES($1) RETURNING id`, kind).Scan(&id)
    return id, err
}

func (r *Repository) FinishJobRun(ctx context.Context, id int64, success bool, errStr string) error {
    _, err := r.db.Pool.Exec(ctx,
        `UPDATE job_runs SET finished_at=now(), success=$2, error=NULLIF($3,'') WHERE id=$1`,
        id, success, errStr)
    return err
}

func scanSession(row pgx.Row) (*domain.Session, error) {
    var s domain.Session
    var typ, status string
    if err := row.Scan(&s.SessionID, &typ, &status, &s.Prompt, &s.RepositoryName, &s.IssueNumber,
        &s.Tags, &s.Output, &s.ErrorMessage, &s.ConfidenceScore,
        &s.SessionURL, &s.GitHubIssueURL, &s.CreatedAt, &s.UpdatedAt, &s.CompletedAt); err != nil {
        return nil, err
    }
    s.SessionType = domain.SessionType(typ)
    s.Status = domain.SessionStatus(status)
    return &s, nil
}

func nullStr(s string) any {
    if s == "" { return nil }
    return s
}
