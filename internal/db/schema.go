package db

import "fmt"

// schemaSQL returns the schema initialization SQL. The HNSW index
// dimension must match the embedding model's output dimension; a mismatch
// would silently break nearest-neighbor search for the whole table.
func schemaSQL(dimension int) string {
	return fmt.Sprintf(`
    -- ==========================================================================
    -- CATALOG TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS catalog SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS code ON catalog TYPE string;
    DEFINE FIELD IF NOT EXISTS year ON catalog TYPE int;
    DEFINE FIELD IF NOT EXISTS description ON catalog TYPE string;
    DEFINE FIELD IF NOT EXISTS unit ON catalog TYPE string;
    DEFINE FIELD IF NOT EXISTS chapter ON catalog TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS section ON catalog TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS price ON catalog TYPE float;
    DEFINE FIELD IF NOT EXISTS labor_price ON catalog TYPE option<float>;
    DEFINE FIELD IF NOT EXISTS material_price ON catalog TYPE option<float>;
    DEFINE FIELD IF NOT EXISTS is_composite ON catalog TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS breakdown ON catalog TYPE option<array<object>> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS page ON catalog TYPE int;
    DEFINE FIELD IF NOT EXISTS source_doc ON catalog TYPE string;
    DEFINE FIELD IF NOT EXISTS input_tokens ON catalog TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS output_tokens ON catalog TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS search_text ON catalog TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding ON catalog TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS created_at ON catalog TYPE datetime DEFAULT time::now();

    -- (year, code) is the dedup/upsert key for catalog records
    DEFINE INDEX IF NOT EXISTS catalog_year_code ON catalog FIELDS year, code UNIQUE;
    DEFINE INDEX IF NOT EXISTS catalog_year_page ON catalog FIELDS year, page;
    DEFINE INDEX IF NOT EXISTS catalog_embedding ON catalog FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
    DEFINE ANALYZER IF NOT EXISTS catalog_analyzer TOKENIZERS class FILTERS lowercase, ascii, snowball(spanish);
    DEFINE INDEX IF NOT EXISTS catalog_search_ft ON catalog FIELDS search_text FULLTEXT ANALYZER catalog_analyzer BM25;

    -- ==========================================================================
    -- INGEST JOB TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS ingest_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS status ON ingest_job TYPE string;
    DEFINE FIELD IF NOT EXISTS source_doc ON ingest_job TYPE string;
    DEFINE FIELD IF NOT EXISTS year ON ingest_job TYPE int;
    DEFINE FIELD IF NOT EXISTS total_pages ON ingest_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS processed_pages ON ingest_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS skipped_pages ON ingest_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS total_items ON ingest_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS input_tokens ON ingest_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS output_tokens ON ingest_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS current_activity ON ingest_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS logs ON ingest_job TYPE array<object> FLEXIBLE DEFAULT [];
    DEFINE FIELD IF NOT EXISTS error ON ingest_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS started_at ON ingest_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS completed_at ON ingest_job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS ingest_job_started ON ingest_job FIELDS started_at;
`, dimension)
}
