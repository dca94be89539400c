package analysis

// DefaultMaxChars caps how much extracted text is sent to the model.
const DefaultMaxChars = 60000

// SystemPrompt is installed as the model's system instruction where the
// provider supports one.
const SystemPrompt = "You are a clinical document analyst. You read the text of medical reports and return structured findings as valid JSON."

// ReportPrompt is the instruction sent ahead of the document text.
const ReportPrompt = `Analyze the following medical report text and extract the clinical findings.

Follow these rules precisely:
1.  Return ONLY a single valid JSON object. Do not include any text before or after it and do not wrap it in markdown fences.
2.  The JSON object must have exactly these keys:
    - "reportTitle": the title or type of the report.
    - "doctorName": the name of the doctor, or "Not specified".
    - "reportDate": the date of the report, or "Not specified".
    - "tests": an array of abnormal test results.
    - "summary": a short summary of the abnormal findings in simple, non-technical language a patient can understand.
3.  Each entry in "tests" must have exactly these keys: "parameter", "value", "unit", "referenceRange", "status".
4.  Use the standard clinical name for every parameter (for example "Hemoglobin" rather than "Hb", "Thyroid Stimulating Hormone" rather than "TSH").
5.  Include ONLY parameters outside their reference range. "status" must be "HIGH" or "LOW". Never include normal values.
6.  If every parameter is within range, return an empty "tests" array and say so in the summary.

Example output format:
{
  "reportTitle": "Complete Blood Count",
  "doctorName": "Dr. A. Sharma",
  "reportDate": "2024-03-12",
  "tests": [
    {"parameter": "Hemoglobin", "value": "10.2", "unit": "g/dL", "referenceRange": "13.0-17.0", "status": "LOW"}
  ],
  "summary": "Your hemoglobin is lower than normal, which can make you feel tired."
}

Medical report text:`
